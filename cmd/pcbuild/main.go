// pcbuild 命令行客户端入口
package main

import "pcbuild/internal/cli"

func main() {
	cli.Execute()
}
