// Package command renders the text dispatched to the agent.
package command

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Built-in templates.
const (
	DefaultContinuation = "続けてください。承認します。お任せで進めてください。"

	DefaultScheduledMission = `予定時刻になりました。「{{.Content}}」を開始してください。

【自律開発モード】
- checkpoint.md の状態を RUNNING に更新してから作業してください
- 承認や確認は不要です。お任せで最後まで完走してください
- 途中で止まる場合は checkpoint.md の状態を WAITING に変更してください
- 完了したら COMPLETE に変更してください`

	DefaultMission = `本日は「{{.Task}}」を作ります。

【自律開発モード】
- 自分で計画を立てて、checkpoint.md に進捗を書き出しながら進めてください
- 承認や確認は不要です。お任せで最後まで完走してください
- 実装 → 検証 → ポータル更新 → Git同期 まで一気にお願いします
- 途中で止まる場合は checkpoint.md の状態を WAITING に変更してください
- 完了したら COMPLETE に変更してください

開発を開始してください。`

	// FallbackContent replaces an absent scheduled content.
	FallbackContent = "次のタスク"
)

// Templates holds optional overrides; empty fields use the built-ins.
type Templates struct {
	Continuation     string
	ScheduledMission string
	Mission          string
}

type missionData struct {
	Content string
	Task    string
}

// Builder renders dispatch text. Rendering never fails: if an override
// cannot execute, the built-in template is used.
type Builder struct {
	continuation string
	scheduled    *template.Template
	mission      *template.Template
}

// NewBuilder parses the templates. Only overrides can fail to parse.
func NewBuilder(t Templates) (*Builder, error) {
	b := &Builder{continuation: strings.TrimSpace(t.Continuation)}
	if b.continuation == "" {
		b.continuation = DefaultContinuation
	}
	var err error
	if b.scheduled, err = parse("scheduled_mission", t.ScheduledMission, DefaultScheduledMission); err != nil {
		return nil, err
	}
	if b.mission, err = parse("mission", t.Mission, DefaultMission); err != nil {
		return nil, err
	}
	return b, nil
}

// Default returns a Builder using only built-in templates.
func Default() *Builder {
	b, err := NewBuilder(Templates{})
	if err != nil {
		panic(err)
	}
	return b
}

func parse(name, override, fallback string) (*template.Template, error) {
	src := override
	if strings.TrimSpace(src) == "" {
		src = fallback
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("command: parse %s template: %w", name, err)
	}
	return tmpl, nil
}

// Continuation returns the nudge sent to a stalled agent.
func (b *Builder) Continuation() string {
	return b.continuation
}

// ScheduledMission renders the prompt for a due schedule.
func (b *Builder) ScheduledMission(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		content = FallbackContent
	}
	return render(b.scheduled, DefaultScheduledMission, missionData{Content: content})
}

// Mission renders the prompt that starts work on a task.
func (b *Builder) Mission(task string) string {
	task = strings.TrimSpace(task)
	if task == "" {
		task = FallbackContent
	}
	return render(b.mission, DefaultMission, missionData{Task: task, Content: task})
}

func render(tmpl *template.Template, fallback string, data missionData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err == nil {
		return strings.TrimSpace(buf.String())
	}
	buf.Reset()
	_ = template.Must(template.New("fallback").Parse(fallback)).Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}
