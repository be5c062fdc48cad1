package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"pcbuild/internal/build"
	"pcbuild/internal/engine"
	"pcbuild/internal/model"
	"pcbuild/internal/service"
)

// printer 价格带千分位
var printer = message.NewPrinter(language.English)

func formatPrice(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// transcript 把对话消息输出到终端
// 同一条消息可能同时来自 HTTP 响应和实时推送，按消息 ID 去重
type transcript struct {
	mu     sync.Mutex
	out    io.Writer
	seen   map[string]struct{}
	expect string // 刚刚在提示符后输入的内容，不再重复显示
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out, seen: make(map[string]struct{})}
}

// Expect 记录用户刚输入的内容，下一条相同的用户消息不再输出
func (t *transcript) Expect(text string) {
	t.mu.Lock()
	t.expect = text
	t.mu.Unlock()
}

// Print 输出尚未显示过的消息，返回输出的条数
func (t *transcript) Print(msgs []engine.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, m := range msgs {
		if _, ok := t.seen[m.ID]; ok {
			continue
		}
		t.seen[m.ID] = struct{}{}
		if m.Role == engine.RoleUser && t.expect != "" && m.Content == t.expect {
			t.expect = ""
			continue
		}
		writeMessage(t.out, m)
		n++
	}
	return n
}

// Printf 输出提示信息，和消息输出共用同一把锁
func (t *transcript) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func writeMessage(w io.Writer, m engine.Message) {
	switch m.Role {
	case engine.RoleUser:
		fmt.Fprintf(w, "you> %s\n", m.Content)
	case engine.RoleAssistant:
		fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(m.Content))
	case engine.RoleSystem:
		fmt.Fprintf(w, "! %s\n", m.Content)
	}
}

// renderBuild 输出配置单表格
func renderBuild(w io.Writer, b *build.Build) {
	if b == nil || b.Empty() {
		fmt.Fprintln(w, "No build yet.")
		return
	}
	renderComponents(w, b.Components, b.TotalPrice)
	if b.Justification != "" {
		fmt.Fprintf(w, "\n%s\n", b.Justification)
	}
	renderWarnings(w, b.Warnings)
}

// renderBuildView 输出已保存的配置单
func renderBuildView(w io.Writer, v *service.BuildView) {
	fmt.Fprintf(w, "%s  (%s, saved %s)\n\n", v.Name, v.ID, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	renderComponents(w, v.Components, v.TotalPrice)
	if v.Justification != "" {
		fmt.Fprintf(w, "\n%s\n", v.Justification)
	}
	renderWarnings(w, v.Warnings)
}

func renderComponents(w io.Writer, components []model.Component, total float64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CATEGORY\tCOMPONENT\tPRICE\t")
	for _, c := range components {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", c.Category, c.Name, formatPrice(c.Price))
	}
	fmt.Fprintf(tw, "\tTOTAL\t%s\t\n", formatPrice(total))
	tw.Flush()

	for _, c := range components {
		if c.Link != nil && *c.Link != "" {
			fmt.Fprintf(w, "  %s: %s\n", c.Name, *c.Link)
		}
	}
}

func renderWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, "\nWarnings:")
	for _, warn := range warnings {
		fmt.Fprintf(w, "  - %s\n", warn)
	}
}

// renderBuildList 输出配置单列表
func renderBuildList(w io.Writer, list *service.BuildListResponse) {
	if len(list.Builds) == 0 {
		fmt.Fprintln(w, "No saved builds.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPARTS\tTOTAL\tSAVED")
	for _, b := range list.Builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			b.ID, b.Name, b.Parts, formatPrice(b.TotalPrice), b.CreatedAt.Local().Format("2006-01-02"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nPage %d, %d of %d builds\n", list.Page, len(list.Builds), list.Total)
}

// renderPreview 输出目录候选集
func renderPreview(w io.Writer, p *service.CatalogPreview) {
	if p.Budget > 0 {
		fmt.Fprintf(w, "Candidates for a budget of %s (%d components)\n\n", formatPrice(p.Budget), p.Total)
	} else {
		fmt.Fprintf(w, "Candidates without a budget (%d components)\n\n", p.Total)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tNAME\tPRICE")
	for _, c := range p.Components {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Category, c.Name, formatPrice(c.Price))
	}
	tw.Flush()
}
