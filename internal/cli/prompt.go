package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// lineReader 交互式输入，liner.State 实现了这个接口
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// errAborted 用户按下 Ctrl+C 或输入结束
var errAborted = errors.New("aborted")

// newLiner 创建带历史记录的行编辑器
func newLiner() lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) []string {
		var out []string
		for _, cmd := range chatCommands {
			if strings.HasPrefix(cmd, s) {
				out = append(out, cmd)
			}
		}
		return out
	})
	return line
}

// promptLine 读取一行；终端中的 Ctrl+C 和 EOF 统一返回 errAborted
func promptLine(r lineReader, prompt string) (string, error) {
	text, err := r.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return "", errAborted
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// readLine 从普通输入读取一行，用于登录等一次性提示
func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	text, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || text == "") {
		return "", errAborted
	}
	return strings.TrimSpace(text), nil
}

// readSecret 读取密码；标准输入是终端时不回显
func (a *app) readSecret(prompt string) (string, error) {
	if a.stdinFd >= 0 && term.IsTerminal(a.stdinFd) {
		fmt.Fprint(a.out, prompt)
		data, err := term.ReadPassword(a.stdinFd)
		fmt.Fprintln(a.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return a.readLine(prompt)
}

// parseYesNo 解析是/否回答，无法识别时 ok 为 false
func parseYesNo(s string) (yes bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "s", "sim":
		return true, true
	case "n", "no", "nao", "não":
		return false, true
	}
	return false, false
}

// stdinFd 标准输入的文件描述符
func stdinFd() int {
	return int(os.Stdin.Fd())
}
