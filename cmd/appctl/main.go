// Command appctl はSDKの動作確認用CLI。
// ログイン、関数呼び出し、ローカルエミュレーターの起動を行う。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/appclient/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "appctl: %v\n", err)
		os.Exit(1)
	}
}
