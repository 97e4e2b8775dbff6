// Command gardenvisit はコミュニティガーデン見学イベントのAPIサーバーとワーカーを起動する。
//
//	gardenvisit [serve]            APIサーバー
//	gardenvisit worker             天気予報の先読みとクリーンアップ
//	gardenvisit migrate [up|down N|version]
//	gardenvisit cleanup            期限切れデータを1回削除
//	gardenvisit healthcheck        Dockerヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/gardenvisit/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gardenvisit: %v\n", err)
		os.Exit(1)
	}
}
