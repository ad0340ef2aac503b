package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/ai"
	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"golang.org/x/sync/errgroup"
)

// textTool extracts the document text fed to the generator
const textTool = "pdf-to-text"

// EngineClient sends one multipart call to a PDF engine
type EngineClient interface {
	Do(ctx context.Context, call engine.Call) (*engine.Result, error)
}

// HostResolver looks up the addresses an engine would connect to
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type Config struct {
	SignedURLTTL time.Duration
	// MaxParallelDownloads bounds concurrent input fetches per run
	MaxParallelDownloads int
	// Resolver defaults to net.DefaultResolver
	Resolver HostResolver
}

// Runner executes a job: fetch inputs, call the engine, store the output
type Runner struct {
	store     objectstore.Store
	engines   EngineClient
	generator ai.Generator
	config    Config
	logger    *slog.Logger
}

func NewRunner(store objectstore.Store, engines EngineClient, generator ai.Generator, config Config, logger *slog.Logger) *Runner {
	if config.SignedURLTTL <= 0 {
		config.SignedURLTTL = time.Hour
	}
	if config.MaxParallelDownloads <= 0 {
		config.MaxParallelDownloads = 4
	}
	if config.Resolver == nil {
		config.Resolver = net.DefaultResolver
	}
	if generator == nil {
		generator = ai.Disabled{}
	}

	return &Runner{
		store:     store,
		engines:   engines,
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

// Validate checks a job before it is recorded: the tool exists, the params
// and input count fit the tool, and every input belongs to the caller.
func (r *Runner) Validate(job Job) error {
	if _, _, err := r.prepare(job); err != nil {
		return err
	}
	return nil
}

func (r *Runner) prepare(job Job) (tools.Tool, map[string]string, error) {
	toolName := job.Type
	params := job.Payload.Params
	if job.Type == JobTypeSummarize {
		toolName = textTool
		params = nil
	}

	tool, err := tools.Lookup(toolName)
	if err != nil {
		return tools.Tool{}, nil, err
	}

	if job.Type == JobTypeSummarize && len(job.Payload.InputPaths) != 1 {
		return tools.Tool{}, nil, fmt.Errorf("%w: summarize takes exactly one input", tools.ErrInvalidInputCount)
	}
	if err := tool.CheckInputs(len(job.Payload.InputPaths)); err != nil {
		return tools.Tool{}, nil, err
	}

	for _, p := range job.Payload.InputPaths {
		if !objectstore.OwnedBy(p, job.UserID) {
			return tools.Tool{}, nil, fmt.Errorf("%w: %s", ErrForbiddenInput, p)
		}
	}

	fields, err := tool.BuildFields(params)
	if err != nil {
		return tools.Tool{}, nil, err
	}
	return tool, fields, nil
}

// checkURLHosts resolves the hosts of URL params and rejects any that point
// into a private network. Names are re-resolved by the engine, so this only
// narrows the window for rebinding.
func (r *Runner) checkURLHosts(ctx context.Context, tool tools.Tool, fields map[string]string) error {
	for _, raw := range tool.URLValues(fields) {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: url: %v", tools.ErrInvalidParams, err)
		}
		host := u.Hostname()
		if addr, err := netip.ParseAddr(host); err == nil {
			if !tools.PublicAddr(addr) {
				return fmt.Errorf("%w: url host %s is not public", tools.ErrInvalidParams, host)
			}
			continue
		}

		addrs, err := r.config.Resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return fmt.Errorf("%w: url host %s does not resolve", tools.ErrInvalidParams, host)
		}
		for _, addr := range addrs {
			if !tools.PublicAddr(addr) {
				return fmt.Errorf("%w: url host %s resolves to %s", tools.ErrInvalidParams, host, addr)
			}
		}
	}
	return nil
}

// Run executes job and returns the stored output with a signed URL
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	tool, fields, err := r.prepare(job)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	logger := r.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.String("engine", string(tool.Engine)),
	)

	if err := r.checkURLHosts(ctx, tool, fields); err != nil {
		return nil, err
	}

	files, err := r.download(ctx, tool, job.Payload.InputPaths)
	if err != nil {
		return nil, stageErr(StageDownload, err)
	}

	out, err := r.engines.Do(ctx, engine.Call{
		Engine:    tool.Engine,
		Path:      tool.Path,
		FileField: tool.FileField,
		Files:     files,
		Fields:    fields,
	})
	if err != nil {
		return nil, stageErr(StageEngine, err)
	}

	var result *Result
	if job.Type == JobTypeSummarize {
		result, err = r.summarize(ctx, job, out)
	} else {
		result, err = r.persist(ctx, job, tool, out)
	}
	if err != nil {
		return nil, err
	}

	signed, err := r.store.SignedURL(ctx, result.OutputPath, r.config.SignedURLTTL)
	if err != nil {
		return nil, stageErr(StageSign, err)
	}
	result.URL = signed

	logger.Info("Job run finished",
		slog.String("output_path", result.OutputPath),
		slog.Int("size", result.Size),
		slog.Duration("duration", time.Since(started)),
	)
	return result, nil
}

// SignURL signs a fresh download URL for a stored output
func (r *Runner) SignURL(ctx context.Context, outputPath string) (string, error) {
	return r.store.SignedURL(ctx, outputPath, r.config.SignedURLTTL)
}

func (r *Runner) download(ctx context.Context, tool tools.Tool, inputPaths []string) ([]engine.File, error) {
	files := make([]engine.File, len(inputPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxParallelDownloads)
	for i, p := range inputPaths {
		g.Go(func() error {
			data, err := r.store.Download(gctx, p)
			if err != nil {
				return err
			}
			name := objectstore.BaseName(p)
			if tool.FileName != "" {
				name = tool.FileName
			}
			files[i] = engine.File{Name: name, Data: data}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Runner) persist(ctx context.Context, job Job, tool tools.Tool, out *engine.Result) (*Result, error) {
	ext := outputExt(out, tool.OutputExt)
	name := outputName(job, tool.Name, ext)
	outputPath := objectstore.ResultPath(job.UserID, job.ID, name)

	contentType := out.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension("." + ext); byExt != "" {
			contentType = byExt
		}
	}

	if err := r.store.Upload(ctx, outputPath, out.Body, contentType); err != nil {
		return nil, stageErr(StageUpload, err)
	}

	return &Result{
		OutputPath:  outputPath,
		ContentType: contentType,
		Size:        len(out.Body),
		Filename:    path.Base(outputPath),
	}, nil
}

func (r *Runner) summarize(ctx context.Context, job Job, out *engine.Result) (*Result, error) {
	gen, err := r.generator.Generate(ctx, job.Payload.Prompt, string(out.Body))
	if err != nil {
		return nil, stageErr(StageGenerate, err)
	}

	name := outputName(job, "summary", "txt")
	outputPath := objectstore.ResultPath(job.UserID, job.ID, name)
	if err := r.store.Upload(ctx, outputPath, []byte(gen.Text), "text/plain; charset=utf-8"); err != nil {
		return nil, stageErr(StageUpload, err)
	}

	return &Result{
		OutputPath:  outputPath,
		ContentType: "text/plain; charset=utf-8",
		Size:        len(gen.Text),
		Filename:    path.Base(outputPath),
		Text:        gen.Text,
		Model:       gen.Model,
		TokenCount:  gen.TokenCount,
	}, nil
}

var extByContentType = map[string]string{
	"application/pdf":    "pdf",
	"application/zip":    "zip",
	"application/json":   "json",
	"application/xml":    "xml",
	"application/rtf":    "rtf",
	"application/msword": "doc",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",

	"application/vnd.ms-powerpoint":                   "ppt",
	"application/vnd.oasis.opendocument.text":         "odt",
	"application/vnd.oasis.opendocument.presentation": "odp",

	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"text/plain":    "txt",
	"text/csv":      "csv",
	"text/html":     "html",
	"text/markdown": "md",
	"text/xml":      "xml",
}

// outputExt picks the extension from the response content type, then the
// response filename, then the tool default
func outputExt(out *engine.Result, fallback string) string {
	if ext, ok := extByContentType[out.ContentType]; ok {
		return ext
	}
	if ext := strings.TrimPrefix(path.Ext(out.Filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return fallback
}

// outputName is the requested name, or <prefix>-<first 8 of job id>.<ext>
func outputName(job Job, prefix, ext string) string {
	if requested := strings.TrimSpace(job.Payload.OutputName); requested != "" {
		name := objectstore.SanitizeName(requested)
		if path.Ext(name) == "" {
			name += "." + ext
		}
		return name
	}

	short := strings.ReplaceAll(job.ID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s.%s", prefix, short, ext)
}
