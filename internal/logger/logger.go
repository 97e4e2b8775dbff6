// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// level はグローバルロガーの出力レベル。設定読み込み後にSetLevelForEnvで変更する。
var level = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// レベルはパッケージのLevelVarに従う（初期値Info）。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevelForEnv は実行環境に応じてログレベルを切り替える。
// productionはInfo、それ以外はDebug。
func SetLevelForEnv(appEnv string) {
	if appEnv == "production" {
		level.Set(slog.LevelInfo)
		return
	}
	level.Set(slog.LevelDebug)
}
