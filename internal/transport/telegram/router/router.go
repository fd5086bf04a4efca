// Package router dispatches chat commands and inline callbacks to
// handlers on a bounded worker pool.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"diarybot/internal/runtime/supervisor"
	kit "diarybot/internal/transport"
	"diarybot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAdmin allows configured bot admins only.
	AccessAdmin
	// AccessGroupAdmin allows, in group chats only, bot admins and the
	// chat's own administrators.
	AccessGroupAdmin
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Hidden      bool          // kept out of the client menu
	Timeout     time.Duration // 0 uses Options.DefaultTimeout
	Handle      HandlerFunc
}

// CallbackRoute handles inline button data of the form "<prefix>:<payload>".
type CallbackRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	IsGroup  bool
	Command  string
	Args     []string
	Payload  string // callback payload
	ReqID    string
	Logger   logx.Logger
	Adapter  kit.Adapter
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	Admins         []int64
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	// ErrorText turns a handler error into the reply shown to the user.
	ErrorText func(error) string
}

type CommandManager struct {
	opt     Options
	log     logx.Logger
	adapter kit.Adapter

	mu        sync.RWMutex
	cmds      map[string]*Command
	order     []*Command
	callbacks map[string]CallbackRoute
	admins    map[int64]struct{}

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, opt Options) *CommandManager {
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	m := &CommandManager{
		opt:       opt,
		log:       log.With(logx.String("comp", "router")),
		adapter:   adapter,
		cmds:      map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		jobs:      make(chan func(), opt.QueueSize),
	}
	m.SetAdmins(opt.Admins)
	return m
}

// SetAdmins replaces the admin list. Safe during hot reload.
func (m *CommandManager) SetAdmins(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.mu.Lock()
	m.admins = set
	m.mu.Unlock()
}

func (m *CommandManager) isAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[id]
	return ok
}

// SetRegistry installs the command and callback tables. A /help command
// is added unless one is registered.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	table := map[string]*Command{}
	order := make([]*Command, 0, len(cmds)+1)
	add := func(c Command) {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			return
		}
		if _, dup := table[name]; dup {
			return
		}
		c.Name = name
		cc := &c
		table[name] = cc
		order = append(order, cc)
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := table[a]; !taken {
					table[a] = cc
				}
			}
		}
	}
	for _, c := range cmds {
		add(c)
	}
	if _, ok := table["help"]; !ok {
		add(Command{
			Name:        "help",
			Description: "список команд",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, m.HelpText(req.FromID), &kit.SendOptions{DisablePreview: true})
			},
		})
	}

	routes := make(map[string]CallbackRoute, len(cbs))
	for _, r := range cbs {
		if p := strings.TrimSpace(r.Prefix); p != "" && r.Handle != nil {
			routes[p] = r
		}
	}

	m.mu.Lock()
	m.cmds = table
	m.order = order
	m.callbacks = routes
	m.mu.Unlock()
}

// PublishMenu pushes the visible commands to the client menu when the
// adapter supports it.
func (m *CommandManager) PublishMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, m.menu())
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log), supervisor.WithCancelOnError(false))
	for i := 0; i < m.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("queue_cap", cap(m.jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			m.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			m.routeCallback(ctx, up)
		}
	}
}

// ParseCommand splits "/cmd@bot a b" into "cmd" and its arguments. ok is
// false for text that is not a command.
func ParseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	name = strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, found := m.cmds[name]
	m.mu.RUnlock()
	if !found {
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(ctx, chat, "Неизвестная команда. Список команд: /help", nil)
		}
		return
	}

	req := m.newRequest(up, chat, msg.FromID, msg.IsGroup, cmd.Name)
	req.FromName = msg.FromName
	req.Args = args

	h := Chain(cmd.Handle,
		MWErrorReply(m.opt.ErrorText),
		MWPanicRecover(m.log),
		MWRequestLog(),
		MWAccess(cmd.Access, m.isAdmin, m.adapter),
		MWTimeout(m.timeout(cmd.Timeout)),
	)
	if !m.enqueue(func() { _ = h(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Бот перегружен, попробуйте через минуту.", nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	prefix, payload, _ := strings.Cut(strings.TrimSpace(cb.Data), ":")

	m.mu.RLock()
	route, ok := m.callbacks[prefix]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := m.newRequest(up, chat, cb.FromID, cb.IsGroup, "cb:"+prefix)
	req.Payload = payload

	h := Chain(route.Handle,
		MWErrorReply(m.opt.ErrorText),
		MWPanicRecover(m.log),
		MWRequestLog(),
		MWTimeout(m.timeout(route.Timeout)),
	)
	if !m.enqueue(func() {
		_ = h(ctx, req)
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "Бот перегружен")
	}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, group bool, command string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		IsGroup: group,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (m *CommandManager) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return m.opt.DefaultTimeout
}
