package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/aussiebroadwan/saccoesb/pkg/idlex"
)

// ErrQuit ends Shell.Run without error.
var ErrQuit = errors.New("quit")

// Command is a shell command.
type Command struct {
	Usage string
	Help  string

	// Unlocked commands stay available while the console is locked.
	Unlocked bool

	Run func(ctx context.Context, args []string) error
}

// Shell is a line-oriented operator console. Every line typed counts as a
// key press for its subscribers, which makes it an idlex.ActivitySource.
//
// Commands and dispatched functions all run on the Run goroutine.
type Shell struct {
	in  io.Reader
	out io.Writer

	// Prompt renders the prompt. Defaults to "> ".
	Prompt func() string

	// Locked reports whether only Unlocked commands may run.
	Locked func() bool

	// Describe turns a command error into the line shown to the operator.
	Describe func(error) string

	mu       sync.Mutex
	commands map[string]Command
	subs     map[int]func(idlex.Signal)
	nextSub  int
	queue    []func()
	wake     chan struct{}
}

// NewShell creates a shell reading commands from in and writing to out.
func NewShell(in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		in:       in,
		out:      out,
		commands: make(map[string]Command),
		subs:     make(map[int]func(idlex.Signal)),
		wake:     make(chan struct{}, 1),
	}
	s.Handle("help", Command{
		Usage:    "help",
		Help:     "list commands",
		Unlocked: true,
		Run: func(context.Context, []string) error {
			s.help()
			return nil
		},
	})
	return s
}

// Handle registers cmd under name, replacing any previous one.
func (s *Shell) Handle(name string, cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[name] = cmd
}

// Subscribe implements idlex.ActivitySource. Only idlex.KeyPress is ever
// emitted.
func (s *Shell) Subscribe(signals []idlex.Signal, fn func(idlex.Signal)) func() {
	if !slices.Contains(signals, idlex.KeyPress) {
		return nil
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Dispatch queues fn to run on the Run goroutine. It never blocks, so it is
// safe to call from a command.
func (s *Shell) Dispatch(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Printf writes to the shell output.
func (s *Shell) Printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Run reads and executes commands until the input ends, a command returns
// ErrQuit or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	s.drain()
	s.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.wake:
			s.drain()

		case line := <-lines:
			s.emit(idlex.KeyPress)
			err := s.exec(ctx, line)
			s.drain()
			if errors.Is(err, ErrQuit) {
				return nil
			}
			s.prompt()

		case err := <-readErr:
			s.drain()
			return err
		}
	}
}

func (s *Shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	s.mu.Lock()
	cmd, ok := s.commands[fields[0]]
	s.mu.Unlock()

	if !ok {
		s.Printf("unknown command %q, type help\n", fields[0])
		return nil
	}
	if !cmd.Unlocked && s.Locked != nil && s.Locked() {
		s.Printf("console is locked, use unlock <password>\n")
		return nil
	}

	err := cmd.Run(ctx, fields[1:])
	switch {
	case err == nil, errors.Is(err, ErrQuit):
		return err
	case s.Describe != nil:
		s.Printf("error: %s\n", s.Describe(err))
	default:
		s.Printf("error: %s\n", err)
	}
	return nil
}

func (s *Shell) emit(sig idlex.Signal) {
	s.mu.Lock()
	fns := make([]func(idlex.Signal), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

func (s *Shell) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
	}
}

func (s *Shell) prompt() {
	p := "> "
	if s.Prompt != nil {
		p = s.Prompt()
	}
	s.Printf("%s", p)
}

func (s *Shell) help() {
	s.mu.Lock()
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	cmds := make([]Command, len(names))
	for i, name := range names {
		cmds[i] = s.commands[name]
	}
	s.mu.Unlock()

	for _, cmd := range cmds {
		s.Printf("  %-28s %s\n", cmd.Usage, cmd.Help)
	}
}
