// Package cli 实现 pcbuild 命令行客户端
// 在终端中完成装机对话，并管理已保存的配置单
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pcbuild/internal/client"
	"pcbuild/pkg/response"
)

// app 命令共享的状态和输入输出
type app struct {
	in      *bufio.Reader
	out     io.Writer
	errOut  io.Writer
	stdinFd int

	configDir string
	serverURL string
	cfg       *configStore

	// newLineReader 对话使用的行编辑器，测试中替换为脚本输入
	newLineReader func() lineReader
}

// Execute 执行根命令
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		in:            bufio.NewReader(os.Stdin),
		out:           os.Stdout,
		errOut:        os.Stderr,
		stdinFd:       stdinFd(),
		newLineReader: newLiner,
	}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pcbuild",
		Short: "pcbuild - guided PC building assistant",
		Long: `pcbuild 命令行客户端

通过几轮问答了解你的用途、预算和使用环境，从配件目录中挑选一套电脑配置。

直接运行即可开始，未登录时会先引导你登录。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.LoggedIn() {
				if err := a.interactiveLogin(cmd.Context(), ""); err != nil {
					return err
				}
			}
			return a.runChat(cmd.Context(), chatOptions{resume: a.cfg.Settings().Chat.LastConversation})
		},
	}

	root.PersistentFlags().StringVarP(&a.serverURL, "server", "s", "", "server address (default "+defaultServerURL+")")
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "config directory (default ~/.pcbuild)")

	root.AddCommand(
		a.loginCommand(),
		a.registerCommand(),
		a.logoutCommand(),
		a.passwordCommand(),
		a.statusCommand(),
		a.profileCommand(),
		a.chatCommand(),
		a.conversationsCommand(),
		a.buildsCommand(),
		a.catalogCommand(),
	)
	return root
}

// init 加载配置
func (a *app) init() error {
	cfg, err := loadConfig(a.configDir)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.SetServerURL(a.serverURL)
	}
	a.cfg = cfg
	return nil
}

// api 根据当前配置创建 API 客户端，令牌刷新后写回配置
func (a *app) api() *client.Client {
	s := a.cfg.Settings()
	return client.New(s.Server.URL,
		client.WithHTTPClient(&http.Client{Timeout: s.Server.RequestTimeout}),
		client.WithTokens(client.Tokens{
			AccessToken:  s.Account.AccessToken,
			RefreshToken: s.Account.RefreshToken,
		}),
		client.OnRefresh(func(t client.Tokens) {
			if err := a.cfg.SaveAccessToken(t.AccessToken); err != nil {
				fmt.Fprintf(a.errOut, "⚠️  failed to save refreshed token: %v\n", err)
			}
		}),
	)
}

// requestContext 单个请求的超时
func (a *app) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := a.cfg.Settings().Server.RequestTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// requireLogin 检查是否已登录
func (a *app) requireLogin() error {
	if !a.cfg.LoggedIn() {
		return errors.New("not logged in, run 'pcbuild login' first")
	}
	return nil
}

// explain 把常见的 API 错误转换成可读的提示
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == response.CodeUnauthorized {
		return errors.New("session expired, run 'pcbuild login' again")
	}
	return err
}
