// Package github implements the site repository on top of the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/deusflow/aurore/internal/publish"
	"github.com/deusflow/aurore/internal/retry"
)

type Repo struct {
	client *gh.Client
	owner  string
	name   string
	author *gh.CommitAuthor
	retry  retry.RetryConfig
	log    *slog.Logger
}

type Option func(*Repo)

// WithBaseURL points the client at another API root (GitHub Enterprise, tests).
func WithBaseURL(u string) Option {
	return func(r *Repo) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		if parsed, err := url.Parse(u); err == nil {
			r.client.BaseURL = parsed
		}
	}
}

func WithRetry(c retry.RetryConfig) Option {
	return func(r *Repo) { r.retry = c }
}

func WithAuthor(name, email string) Option {
	return func(r *Repo) {
		r.author = &gh.CommitAuthor{Name: gh.String(name), Email: gh.String(email)}
	}
}

// New returns a client for fullName ("owner/repo").
func New(token, fullName string, log *slog.Logger, opts ...Option) (*Repo, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository name %q", fullName)
	}
	r := &Repo{
		client: gh.NewClient(&http.Client{Timeout: 30 * time.Second}).WithAuthToken(token),
		owner:  owner,
		name:   name,
		retry:  retry.Default,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Repo) FullName() string { return r.owner + "/" + r.name }

// classify maps a go-github error to the retry taxonomy.
func classify(resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return retry.Permanent(publish.ErrNotFound)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return retry.Permanent(err)
}

func (r *Repo) contents(ctx context.Context, branch, path string) (*gh.RepositoryContent, []*gh.RepositoryContent, error) {
	var (
		file *gh.RepositoryContent
		dir  []*gh.RepositoryContent
	)
	err := retry.WithRetry(ctx, r.retry, func() error {
		var (
			resp *gh.Response
			err  error
		)
		file, dir, resp, err = r.client.Repositories.GetContents(ctx, r.owner, r.name, path,
			&gh.RepositoryContentGetOptions{Ref: branch})
		return classify(resp, err)
	})
	return file, dir, err
}

func (r *Repo) ReadFile(ctx context.Context, branch, path string) ([]byte, error) {
	file, _, err := r.contents(ctx, branch, path)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return []byte(content), nil
}

func (r *Repo) ListDir(ctx context.Context, branch, dir string) ([]string, error) {
	_, entries, err := r.contents(ctx, branch, dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.GetType() == "file" {
			paths = append(paths, e.GetPath())
		}
	}
	return paths, nil
}

// CommitFiles writes all files in a single commit through the git data API:
// ref, parent commit, tree on top of the parent tree, commit, ref update.
func (r *Repo) CommitFiles(ctx context.Context, branch, message string, files []publish.File) error {
	var ref *gh.Reference
	err := retry.WithRetry(ctx, r.retry, func() error {
		var (
			resp *gh.Response
			err  error
		)
		ref, resp, err = r.client.Git.GetRef(ctx, r.owner, r.name, "heads/"+branch)
		if resp != nil && resp.StatusCode == http.StatusConflict {
			// empty repository
			return retry.Permanent(publish.ErrAtomicUnsupported)
		}
		return classify(resp, err)
	})
	if errors.Is(err, publish.ErrNotFound) {
		return publish.ErrAtomicUnsupported
	}
	if err != nil {
		return fmt.Errorf("get ref %s: %w", branch, err)
	}

	parentSHA := ref.GetObject().GetSHA()
	var parent *gh.Commit
	err = retry.WithRetry(ctx, r.retry, func() error {
		var (
			resp *gh.Response
			err  error
		)
		parent, resp, err = r.client.Git.GetCommit(ctx, r.owner, r.name, parentSHA)
		return classify(resp, err)
	})
	if err != nil {
		return fmt.Errorf("get commit %s: %w", parentSHA, err)
	}

	entries := make([]*gh.TreeEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &gh.TreeEntry{
			Path:    gh.String(f.Path),
			Mode:    gh.String("100644"),
			Type:    gh.String("blob"),
			Content: gh.String(string(f.Content)),
		})
	}
	tree, _, err := r.client.Git.CreateTree(ctx, r.owner, r.name, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	commit, _, err := r.client.Git.CreateCommit(ctx, r.owner, r.name, &gh.Commit{
		Message: gh.String(message),
		Tree:    tree,
		Parents: []*gh.Commit{{SHA: gh.String(parentSHA)}},
		Author:  r.author,
	}, nil)
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	ref.Object.SHA = commit.SHA
	if _, _, err := r.client.Git.UpdateRef(ctx, r.owner, r.name, ref, false); err != nil {
		return fmt.Errorf("update ref %s: %w", branch, err)
	}
	r.log.Debug("commit created", "sha", commit.GetSHA(), "files", len(files))
	return nil
}

// PutFile creates or updates one file through the contents API.
func (r *Repo) PutFile(ctx context.Context, branch, message string, file publish.File) error {
	opts := &gh.RepositoryContentFileOptions{
		Message:   gh.String(message),
		Content:   file.Content,
		Branch:    gh.String(branch),
		Author:    r.author,
		Committer: r.author,
	}

	existing, _, err := r.contents(ctx, branch, file.Path)
	switch {
	case errors.Is(err, publish.ErrNotFound):
		_, _, err = r.client.Repositories.CreateFile(ctx, r.owner, r.name, file.Path, opts)
	case err != nil:
		return fmt.Errorf("get %s: %w", file.Path, err)
	default:
		opts.SHA = existing.SHA
		_, _, err = r.client.Repositories.UpdateFile(ctx, r.owner, r.name, file.Path, opts)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", file.Path, err)
	}
	return nil
}

// OpenReview creates req.Head from req.Base, commits the files on it and
// opens a pull request. Pull request creation is not retried.
func (r *Repo) OpenReview(ctx context.Context, req publish.ReviewRequest) (string, error) {
	base, _, err := r.client.Git.GetRef(ctx, r.owner, r.name, "heads/"+req.Base)
	if err != nil {
		return "", fmt.Errorf("get ref %s: %w", req.Base, err)
	}
	_, _, err = r.client.Git.CreateRef(ctx, r.owner, r.name, &gh.Reference{
		Ref:    gh.String("refs/heads/" + req.Head),
		Object: &gh.GitObject{SHA: base.GetObject().SHA},
	})
	if err != nil {
		return "", fmt.Errorf("create branch %s: %w", req.Head, err)
	}

	err = r.CommitFiles(ctx, req.Head, req.Message, req.Files)
	if errors.Is(err, publish.ErrAtomicUnsupported) {
		for _, f := range req.Files {
			if err = r.PutFile(ctx, req.Head, req.Message, f); err != nil {
				break
			}
		}
	}
	if err != nil {
		r.dropBranch(ctx, req.Head)
		return "", err
	}

	pr, _, err := r.client.PullRequests.Create(ctx, r.owner, r.name, &gh.NewPullRequest{
		Title: gh.String(req.Title),
		Head:  gh.String(req.Head),
		Base:  gh.String(req.Base),
		Body:  gh.String(req.Body),
	})
	if err != nil {
		r.dropBranch(ctx, req.Head)
		return "", fmt.Errorf("create pull request: %w", err)
	}

	if req.AutoMerge {
		res, _, err := r.client.PullRequests.Merge(ctx, r.owner, r.name, pr.GetNumber(), req.Message,
			&gh.PullRequestOptions{MergeMethod: "squash"})
		switch {
		case err != nil:
			r.log.Warn("auto-merge failed, pull request left open", "pr", pr.GetHTMLURL(), "err", err)
		case !res.GetMerged():
			r.log.Warn("pull request not merged", "pr", pr.GetHTMLURL(), "message", res.GetMessage())
		default:
			r.log.Info("pull request merged", "pr", pr.GetHTMLURL())
		}
	}
	return pr.GetHTMLURL(), nil
}

// dropBranch deletes a review branch that did not make it to a pull request,
// so the next run can create it again.
func (r *Repo) dropBranch(ctx context.Context, branch string) {
	if _, err := r.client.Git.DeleteRef(context.WithoutCancel(ctx), r.owner, r.name, "heads/"+branch); err != nil {
		r.log.Warn("failed to delete review branch", "branch", branch, "err", err)
		return
	}
	r.log.Info("review branch deleted", "branch", branch)
}

// Dispatch sends a repository_dispatch event.
func (r *Repo) Dispatch(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := json.RawMessage(raw)
	_, _, err = r.client.Repositories.Dispatch(ctx, r.owner, r.name, gh.DispatchRequestOptions{
		EventType:     event,
		ClientPayload: &msg,
	})
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", event, err)
	}
	return nil
}
