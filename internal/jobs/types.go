package jobs

import (
	"fmt"
	"time"

	"github.com/yourusername/pdf2img/internal/pdf"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal は完了または失敗かどうかを返します。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// pending → processing → {completed | failed}
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition は from から to への遷移が許されるかを返します。
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PageArtifact は変換済みの1ページです。
type PageArtifact struct {
	PageNumber int    `json:"pageNumber"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
}

// Job は変換ジョブの現在状態を表します。
type Job struct {
	ID               string         `json:"id"`
	Status           Status         `json:"status"`
	OriginalFilename string         `json:"originalFilename"`
	TotalPages       *int           `json:"totalPages,omitempty"`
	CompletedPages   int            `json:"completedPages"`
	SourcePages      int            `json:"sourcePages,omitempty"`
	Pages            []PageArtifact `json:"images"`
	Options          pdf.Options    `json:"options"`
	OutputDir        string         `json:"outputDir,omitempty"`
	ErrorCode        string         `json:"errorCode,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// Clone はスナップショット用の深いコピーを返します。
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.TotalPages != nil {
		total := *j.TotalPages
		cp.TotalPages = &total
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		cp.CompletedAt = &at
	}
	if j.Pages != nil {
		cp.Pages = make([]PageArtifact, len(j.Pages))
		copy(cp.Pages, j.Pages)
	}
	return &cp
}

// Progress は既知のページ数に対する進捗率を返します。ページ数が分からない場合と失敗したジョブは -1。
func (j *Job) Progress() int {
	switch {
	case j.Status == StatusCompleted:
		return 100
	case j.Status == StatusFailed:
		return -1
	case j.TotalPages != nil && *j.TotalPages > 0:
		return j.CompletedPages * 100 / *j.TotalPages
	case j.SourcePages > 0:
		percent := j.CompletedPages * 100 / j.SourcePages
		if percent > 99 {
			percent = 99
		}
		return percent
	default:
		return -1
	}
}

func (j *Job) transition(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return newError(CodeInvalidTransition, fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.Status, to), ErrInvalidTransition)
	}
	j.Status = to
	if to.IsTerminal() {
		at := now
		j.CompletedAt = &at
	}
	return nil
}

// appendPage はページを1枚追加し、完了ページ数を進めます。
func (j *Job) appendPage(page PageArtifact) error {
	if j.Status != StatusProcessing {
		return newError(CodeInvalidTransition, fmt.Sprintf("job %s is %s, pages can only be added while processing", j.ID, j.Status), ErrInvalidTransition)
	}
	if page.PageNumber != len(j.Pages)+1 {
		return fmt.Errorf("page %d out of order for job %s (next is %d)", page.PageNumber, j.ID, len(j.Pages)+1)
	}
	j.Pages = append(j.Pages, page)
	j.CompletedPages++
	return nil
}

func (j *Job) complete(now time.Time) error {
	if err := j.transition(StatusCompleted, now); err != nil {
		return err
	}
	total := len(j.Pages)
	j.TotalPages = &total
	return nil
}

// fail は失敗状態へ遷移します。成果物は削除されるため一覧も空にします。
func (j *Job) fail(code, message string, now time.Time) error {
	if err := j.transition(StatusFailed, now); err != nil {
		return err
	}
	j.ErrorCode = code
	j.Error = message
	j.Pages = nil
	return nil
}

// Submission は変換の投入内容です。
type Submission struct {
	SourcePath       string
	OriginalFilename string
	Overrides        pdf.Overrides
	SourcePages      int
}

// Outcome は1回の変換結果です。失敗時もジョブIDを含みます。
type Outcome struct {
	JobID      string         `json:"jobId"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	ErrorCode  string         `json:"errorCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	TotalPages int            `json:"totalPages,omitempty"`
	Pages      []PageArtifact `json:"images,omitempty"`
}
