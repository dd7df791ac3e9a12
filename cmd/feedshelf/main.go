// feedshelf は記事・ポッドキャストのコンテンツストアとフェッチワーカーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/feedshelf/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "feedshelf: %v\n", err)
		os.Exit(1)
	}
}
