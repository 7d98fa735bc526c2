// Command boardroomctl 是面向运维的命令行工具：直接对配置好的模型运行一次董事会编排、
// 查看 persona 注册表，或在终端里走一遍 onboarding。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
