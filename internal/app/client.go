package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/channel"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/fragment"
	"github.com/ternarybob/highlight/internal/handoff"
	"github.com/ternarybob/highlight/internal/models"
	"github.com/ternarybob/highlight/internal/poller"
	"github.com/ternarybob/highlight/internal/progress"
	"github.com/ternarybob/highlight/internal/subscriptions"
	"github.com/ternarybob/highlight/internal/upload"
)

const barWidth = 30

// Client holds the task tracking components of one terminal page
type Client struct {
	Config *common.Config
	Logger arbor.ILogger
	Page   *TerminalPage

	// Event channel and subscriptions
	Channel  *channel.Manager
	Registry *subscriptions.Registry

	// Page components
	Directory  *handoff.Directory
	Bar        *progress.Bar
	Controller *progress.Controller
	Bridge     *handoff.Bridge

	// HTTP collaborators
	Uploader *upload.Client
	Workflow *upload.Workflow
	Poller   *poller.Poller
	Loader   *fragment.Loader
}

// NewClient wires a client page writing to out. query plays the role of the page URL.
func NewClient(cfg *common.Config, logger arbor.ILogger, out io.Writer, query url.Values) *Client {
	c := &Client{
		Config: cfg,
		Logger: logger,
		Page:   NewTerminalPage(out, query),
	}

	handshake := common.ParseDuration(cfg.Channel.HandshakeTimeout, 10*time.Second)
	transport := channel.NewWebSocketTransport(cfg.ChannelURL(), handshake,
		common.ParseDuration(cfg.Channel.WriteTimeout, 5*time.Second))
	c.Channel = channel.NewManager(transport, logger, handshake)
	c.Registry = subscriptions.NewRegistry(c.Channel, logger)

	c.Directory = handoff.NewDirectory()
	c.Bar = progress.NewBar(progress.WithLabel("Прогресс"), progress.WithObserver(func(value, max float64) {
		c.Page.ProgressLine(c.Bar.Render(barWidth))
	}))
	c.Directory.Register(handoff.KeyProgressDisplay, c.Bar)

	c.Controller = progress.NewController(c.Page, c.Registry, logger, progress.Options{
		ResultsPath: cfg.Progress.ResultsPath,
		PageKey:     cfg.Progress.PageKey,
		Directory:   c.Directory,
	})
	c.Bridge = handoff.NewBridge(c.Directory, cfg.Progress.PageKey,
		cfg.Handoff.MaxAttempts, common.ParseDuration(cfg.Handoff.Interval, handoff.DefaultInterval), logger)

	c.Uploader = upload.NewClient(cfg.ResolveURL,
		common.ParseDuration(cfg.Upload.Timeout, 60*time.Second), cfg.Upload.PreviewLimit, logger)
	c.Workflow = upload.NewWorkflow(c.Uploader, c.Page, c.Bridge, logger)

	c.Poller = poller.NewPoller(cfg.ResolveURL, poller.Config{
		Interval:    common.ParseDuration(cfg.Poll.Interval, poller.DefaultInterval),
		StatusPath:  cfg.Poll.StatusPath,
		ResultsPath: cfg.Progress.ResultsPath,
	}, c.Page, c.Page, logger)

	c.Loader = fragment.NewLoader(cfg.ResolveURL, common.ParseDuration(cfg.Upload.Timeout, 60*time.Second), logger)

	return c
}

// Submit validates and sends form, then hands the task id to the controller
func (c *Client) Submit(ctx context.Context, form *upload.Form) (string, error) {
	if form.Action == "" {
		form.Action = c.Config.Upload.Action
	}
	if form.Kind == "" {
		form.Kind = upload.KindFromAction(form.Action)
	}
	return c.Workflow.Submit(ctx, form)
}

// Wait blocks until the controller tracks taskID and the task ends, or ctx is done
func (c *Client) Wait(ctx context.Context, taskID string) (progress.Phase, error) {
	for {
		switched := c.Controller.TaskSwitched()
		if c.Controller.State().TaskID == taskID {
			break
		}
		select {
		case <-switched:
		case <-ctx.Done():
			return c.Controller.Phase(), ctx.Err()
		}
	}

	select {
	case <-c.Controller.Done():
		return c.Controller.Phase(), nil
	case <-ctx.Done():
		return c.Controller.Phase(), ctx.Err()
	}
}

// Watch initializes the page from its URL and waits for the tracked task to end
func (c *Client) Watch(ctx context.Context) (progress.Phase, error) {
	if err := c.Controller.Initialize(ctx); err != nil {
		return c.Controller.Phase(), err
	}
	taskID := c.Controller.State().TaskID
	if taskID == "" {
		return progress.PhaseIdle, fmt.Errorf("no %s or %s to track", progress.ParamTaskID, progress.ParamLegacyTaskID)
	}
	return c.Wait(ctx, taskID)
}

// Poll tracks taskID through the status route
func (c *Client) Poll(ctx context.Context, taskID string) (models.TaskState, error) {
	return c.Poller.Poll(ctx, taskID)
}

// Modal loads the fragment at path into the page's modal and returns it as Markdown
func (c *Client) Modal(ctx context.Context, path string) string {
	c.Loader.Open(ctx, c.Page, path)
	return c.Loader.Markdown(c.Page.ModalBody())
}

// Close stops tracking and closes the channel
func (c *Client) Close() {
	c.Controller.Close()
	if err := c.Channel.Close(); err != nil {
		c.Logger.Debug().Err(err).Msg("Channel close failed")
	}
}
