package app

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandLogin はログインしてユーザー情報を表示する。
	CommandLogin Command = "login"
	// CommandCall はログイン後にリモート関数を呼び出して結果を表示する。
	CommandCall Command = "call"
	// CommandServe はローカルのプラットフォームエミュレーターを起動する。
	CommandServe Command = "serve"
	// CommandHealthcheck はエミュレーターのヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// usage はCLIの使い方。
const usage = `usage: appctl <command> [arguments]

commands:
  login <provider> [key=value...]                       log in and print the user
  call [-provider name] [-material key=value] <name> [json-arg...]
                                                        log in and call a function
  serve                                                 run the local platform emulator
  healthcheck                                           check the local emulator
`

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandHelpを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandHelp
	}

	switch args[0] {
	case "login":
		return CommandLogin
	case "call":
		return CommandCall
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandHelp
	}
}
