package app

import (
	"fmt"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はフェッチワーカーとコンパクションを起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandImportOPML はOPMLファイルからフィードを取り込むことを示す。
	CommandImportOPML Command = "import-opml"
	// CommandExportOPML はフィード一覧をOPMLとして書き出すことを示す。
	CommandExportOPML Command = "export-opml"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Options はコマンドラインオプション。
type Options struct {
	Config string `short:"c" long:"config" description:"YAML設定ファイルのパス" value-name:"FILE" env:"FEEDSHELF_CONFIG"`

	Serve   struct{} `command:"serve" description:"APIサーバーを起動する（既定）"`
	Worker  struct{} `command:"worker" description:"フィードのフェッチとコンパクションを実行する"`
	Migrate struct{} `command:"migrate" description:"データベースマイグレーションを適用する"`

	ImportOPML struct {
		Args struct {
			File string `positional-arg-name:"FILE" required:"yes" description:"取り込むOPMLファイル"`
		} `positional-args:"yes"`
	} `command:"import-opml" description:"OPMLファイルからフィードを取り込む"`

	ExportOPML struct {
		Output string `short:"o" long:"output" description:"出力先ファイル（省略時は標準出力）" value-name:"FILE"`
	} `command:"export-opml" description:"フィード一覧をOPMLとして書き出す"`

	Healthcheck struct {
		Port string `long:"port" description:"確認するAPIサーバーのポート" env:"SERVER_PORT" default:"8080"`
	} `command:"healthcheck" description:"ローカルのAPIサーバーの /health を確認する"`
}

// ParseCommand はコマンドライン引数からサブコマンドとオプションを解析する。
// サブコマンドが省略された場合はCommandServeを返す。
// --help の場合は種別ErrHelpの*flags.Errorを返す。
func ParseCommand(args []string) (Command, *Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "feedshelf"
	parser.SubcommandsOptional = true

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return "", nil, err
	}
	if len(rest) > 0 {
		return "", nil, fmt.Errorf("不明なサブコマンドです: %s", strings.Join(rest, " "))
	}

	if parser.Active == nil {
		return CommandServe, &opts, nil
	}
	return Command(parser.Active.Name), &opts, nil
}
