package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pcbuild/internal/build"
	"pcbuild/internal/client"
	"pcbuild/internal/engine"
	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// chatCommands 对话中可用的命令，也用于补全
var chatCommands = []string{"/build", "/save", "/help", "/quit"}

const chatHelp = `Commands:
  /build         show the current build
  /save [name]   save the current build
  /help          show this help
  /quit          leave (the conversation can be resumed later)`

type chatOptions struct {
	resume    string // 继续已有的对话
	fromBuild string // 以已保存的配置单为起点
}

func (a *app) chatCommand() *cobra.Command {
	var opts chatOptions
	var fresh bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant and get a PC build",
		Long: `开始或继续一段装机对话。

默认继续上次未完成的对话；--new 开始新的对话，--from-build 以已保存的配置单为起点。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if opts.resume == "" && !fresh && opts.fromBuild == "" {
				opts.resume = a.cfg.Settings().Chat.LastConversation
			}
			return a.runChat(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new conversation")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "resume a conversation by id")
	cmd.Flags().StringVar(&opts.fromBuild, "from-build", "", "start from a saved build")
	return cmd
}

// chatSession 一段终端对话
type chatSession struct {
	app *app
	api *client.Client
	tr  *transcript

	id       string
	state    engine.State
	awaiting bool
	build    *build.Build
	buildID  *string
}

// runChat 打开对话并进入交互循环
func (a *app) runChat(ctx context.Context, opts chatOptions) error {
	s := &chatSession{app: a, api: a.api(), tr: newTranscript(a.out)}
	if err := s.open(ctx, opts); err != nil {
		return explain(err)
	}
	if err := a.cfg.SaveLastConversation(s.id); err != nil {
		fmt.Fprintf(a.errOut, "⚠️  %v\n", err)
	}

	if a.cfg.Settings().Chat.Live {
		stream, err := s.api.Connect(ctx, s.mirror)
		if err != nil {
			fmt.Fprintf(a.errOut, "⚠️  live updates unavailable: %v\n", err)
		} else {
			defer stream.Close()
		}
	}

	lr := a.newLineReader()
	defer lr.Close()
	return s.loop(ctx, lr)
}

// open 继续已有对话或开始新对话
// 要继续的对话已经结束或不存在时开始新对话
func (s *chatSession) open(ctx context.Context, opts chatOptions) error {
	reqCtx, cancel := s.app.requestContext(ctx)
	defer cancel()

	if opts.resume != "" && opts.fromBuild == "" {
		view, err := s.api.Conversation(reqCtx, opts.resume)
		switch {
		case err == nil && !view.State.Closed():
			s.apply(view)
			s.tr.Printf("Resuming conversation %s\n\n", view.ID)
			s.tr.Print(view.Messages)
			return nil
		case err != nil && !client.IsCode(err, response.CodeConversationNotFound):
			return err
		}
	}

	view, err := s.api.StartConversation(reqCtx, opts.fromBuild)
	if err != nil {
		return err
	}
	s.apply(view)
	s.tr.Print(view.Messages)
	return nil
}

func (s *chatSession) apply(view *service.ConversationView) {
	s.id = view.ID
	s.state = view.State
	s.awaiting = view.State == engine.StateAwaitingSideChannel
	s.build = view.Build
	s.buildID = view.BuildID
}

// mirror 显示其他设备上完成的轮次
func (s *chatSession) mirror(turn *service.TurnView) {
	if turn.ConversationID != s.id {
		return
	}
	s.tr.Print(turn.Messages)
}

// loop 交互循环，直到对话结束或用户退出
func (s *chatSession) loop(ctx context.Context, lr lineReader) error {
	s.tr.Printf("(type /help for commands)\n")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.state.Closed() {
			s.finish()
			return nil
		}

		if s.awaiting {
			done, err := s.askConsent(ctx, lr)
			if err != nil || done {
				return err
			}
			continue
		}

		line, err := promptLine(lr, "> ")
		if errors.Is(err, errAborted) {
			s.tr.Printf("\nBye! Run 'pcbuild chat' to continue this conversation.\n")
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		lr.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}
		s.send(ctx, line)
	}
}

// askConsent 询问是否共享位置，done 为 true 表示用户退出
func (s *chatSession) askConsent(ctx context.Context, lr lineReader) (done bool, err error) {
	answer, err := promptLine(lr, "Share your approximate location (city level) for climate-aware advice? [y/n]: ")
	if errors.Is(err, errAborted) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	if answer == "/quit" {
		return true, nil
	}
	grant, ok := parseYesNo(answer)
	if !ok {
		s.tr.Printf("Please answer y or n.\n")
		return false, nil
	}

	reqCtx, cancel := s.app.requestContext(ctx)
	defer cancel()
	s.tr.Printf("(thinking...)\n")
	turn, err := s.api.ResolveConsent(reqCtx, s.id, grant)
	s.handleTurn(turn, err)
	return false, nil
}

// send 发送一条消息并显示结果
func (s *chatSession) send(ctx context.Context, text string) {
	reqCtx, cancel := s.app.requestContext(ctx)
	defer cancel()

	s.tr.Expect(text)
	s.tr.Printf("(thinking...)\n")
	turn, err := s.api.Send(reqCtx, s.id, text)
	s.handleTurn(turn, err)
}

// handleTurn 显示轮次结果；失败的轮次仍然带有系统提示
func (s *chatSession) handleTurn(turn *service.TurnView, err error) {
	if turn != nil {
		s.tr.Print(turn.Messages)
		s.state = turn.State
		s.awaiting = turn.AwaitingConsent
		s.build = turn.Build
		if turn.BuildID != nil {
			s.buildID = turn.BuildID
		}
		if len(turn.Unresolved) > 0 {
			s.tr.Printf("! ignored unknown components: %s\n", strings.Join(turn.Unresolved, ", "))
		}
	}
	if err == nil {
		return
	}

	switch {
	case client.IsCode(err, response.CodeConversationClosed):
		s.state = engine.StateFailed
		if s.build != nil && !s.build.Empty() {
			s.state = engine.StateComplete
		}
	case client.IsCode(err, response.CodeAwaitingConsent):
		s.awaiting = true
	case client.IsCode(err, response.CodeNoPendingConsent):
		s.awaiting = false
	}
	if turn == nil || turn.Error == "" {
		s.tr.Printf("! %v\n", explain(err))
	}
}

// command 处理斜杠命令，返回 true 表示退出
func (s *chatSession) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		s.tr.Printf("Bye! Run 'pcbuild chat' to continue this conversation.\n")
		return true
	case "/help":
		s.tr.Printf("%s\n", chatHelp)
	case "/build":
		s.showBuild()
	case "/save":
		reqCtx, cancel := s.app.requestContext(ctx)
		defer cancel()
		saved, err := s.api.SaveBuild(reqCtx, s.id, strings.TrimSpace(arg))
		if err != nil {
			s.tr.Printf("! %v\n", explain(err))
			return false
		}
		s.buildID = &saved.ID
		s.tr.Printf("✓ Saved as %q (%s)\n", saved.Name, saved.ID)
	default:
		s.tr.Printf("Unknown command %s\n%s\n", name, chatHelp)
	}
	return false
}

func (s *chatSession) showBuild() {
	var sb strings.Builder
	renderBuild(&sb, s.build)
	s.tr.Printf("%s", sb.String())
}

// finish 对话结束时显示最终配置单
func (s *chatSession) finish() {
	if s.state == engine.StateFailed {
		s.tr.Printf("The conversation ended without a build. Run 'pcbuild chat --new' to start over.\n")
	} else {
		s.tr.Printf("\n🎉 Your build is ready\n\n")
		s.showBuild()
		if s.buildID != nil {
			s.tr.Printf("\nSaved as build %s (see 'pcbuild builds show %s')\n", *s.buildID, *s.buildID)
		}
	}
	if err := s.app.cfg.SaveLastConversation(""); err != nil {
		fmt.Fprintf(s.app.errOut, "⚠️  %v\n", err)
	}
}
