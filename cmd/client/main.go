package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xaenox/appdock/internal/client"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"github.com/xaenox/appdock/internal/store"
	"github.com/xaenox/appdock/pkg/config"
	"go.uber.org/zap"
)

// The client binary is a line-oriented console over the client stores:
// the same local-first, optimistic-write machinery a full frontend
// would embed, wired to a running server over HTTP and websocket.
func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	api := client.New(cfg.Client.ServerURL)
	events := api.Events(logger)
	ai := client.NewAssistant(api, logger)

	cache, err := store.OpenCache(cfg.Store.CachePath)
	if err != nil {
		logger.Fatal("Failed to open cache", zap.Error(err), zap.String("path", cfg.Store.CachePath))
	}
	lists := store.NewLists(cache, logger)

	s := session{
		api:    api,
		events: events,
		ai:     ai,
		cache:  cache,
		lists:  lists,
		logger: logger,
		out:    os.Stdout,
	}
	defer s.closeCurrent()

	fmt.Fprintf(s.out, "connected to %s (language: %s)\n", cfg.Client.ServerURL, cache.Language())
	fmt.Fprintln(s.out, `type "help" for commands`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		if s.run(strings.TrimSpace(scanner.Text())) {
			break
		}
	}
}

type session struct {
	api    *client.Client
	events *realtime.RemoteSource
	ai     *client.Assistant
	cache  *store.Cache
	lists  *store.Lists
	logger *zap.Logger
	out    *os.File

	list *store.ListStore
	chat *store.ChatStore
}

func (s *session) closeCurrent() {
	if s.list != nil {
		s.list.Close()
		s.list = nil
	}
	if s.chat != nil {
		s.chat.Close()
		s.chat = nil
	}
}

// run executes one console command and reports whether to quit.
func (s *session) run(line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "help":
		s.help()
	case "lists":
		for _, info := range s.lists.All() {
			title := info.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(s.out, "%s  %s\n", info.ID, title)
		}
	case "new":
		info := s.lists.Create(arg)
		fmt.Fprintf(s.out, "created %s\n", info.ID)
	case "open":
		s.openList(arg)
	case "rename":
		if s.requireList() {
			s.list.Rename(arg)
		}
	case "items":
		if s.requireList() {
			s.printItems()
		}
	case "add":
		if s.requireList() {
			item := s.list.AddItem(arg)
			fmt.Fprintf(s.out, "added %s\n", item.ID)
		}
	case "toggle":
		if s.requireList() {
			s.list.Toggle(arg)
		}
	case "rm":
		if s.requireList() {
			s.list.Remove(arg)
		}
	case "clear":
		if s.requireList() {
			s.list.ClearAll()
		}
	case "bulk":
		if s.requireList() {
			s.list.SetInput(arg)
			if err := s.list.Submit(context.Background()); err != nil {
				fmt.Fprintf(s.out, "bulk add failed: %v\n", err)
			}
			s.printNotices()
		}
	case "notices":
		if s.requireList() {
			s.printNotices()
		}
	case "dismiss":
		if s.requireList() {
			var id int
			fmt.Sscanf(arg, "%d", &id)
			s.list.Dismiss(id)
		}
	case "chat":
		s.openChat(arg)
	case "say":
		if s.chat == nil {
			fmt.Fprintln(s.out, "no chat open")
			break
		}
		s.chat.AddMessage(arg)
	case "msgs":
		if s.chat == nil {
			fmt.Fprintln(s.out, "no chat open")
			break
		}
		for _, msg := range s.chat.Messages() {
			for _, part := range msg.Content {
				fmt.Fprintf(s.out, "%s  %s\n", msg.ID, part.Text)
			}
		}
	default:
		fmt.Fprintf(s.out, "unknown command %q\n", cmd)
	}
	return false
}

func (s *session) openList(id string) {
	s.closeCurrent()
	list, err := store.NewListStore(store.ListOptions{
		ListID:    id,
		Lists:     s.lists,
		Backend:   s.api,
		Events:    s.events,
		Assistant: s.ai,
		Cache:     s.cache,
		Logger:    s.logger,
	})
	if err != nil {
		fmt.Fprintf(s.out, "open failed: %v\n", err)
		return
	}
	s.list = list
	fmt.Fprintf(s.out, "opened list %s\n", id)
}

func (s *session) openChat(name string) {
	app, err := s.api.GetAppByName(context.Background(), name)
	if err != nil {
		fmt.Fprintf(s.out, "lookup failed: %v\n", err)
		return
	}
	if app.Type != models.AppTypeChat {
		fmt.Fprintf(s.out, "%s is not a chat app\n", name)
		return
	}

	s.closeCurrent()
	chat, err := store.NewChatStore(context.Background(), store.ChatOptions{
		App:     app,
		Backend: s.api,
		Events:  s.events,
		Logger:  s.logger,
	})
	if err != nil {
		fmt.Fprintf(s.out, "open failed: %v\n", err)
		return
	}
	chat.SubscribeToMessages()
	s.chat = chat
	fmt.Fprintf(s.out, "opened chat %s\n", name)
}

func (s *session) requireList() bool {
	if s.list == nil {
		fmt.Fprintln(s.out, "no list open")
		return false
	}
	return true
}

func (s *session) printItems() {
	for _, item := range s.list.Items() {
		mark := " "
		if item.Content.Done {
			mark = "x"
		}
		fmt.Fprintf(s.out, "[%s] %s %s  %s\n", mark, item.Content.Category, item.ID, item.Content.Text)
	}
}

func (s *session) printNotices() {
	for _, n := range s.list.Notices() {
		fmt.Fprintf(s.out, "notice %d: %s (%s)\n", n.ID, n.Title, n.Detail)
	}
}

func (s *session) help() {
	fmt.Fprint(s.out, `lists                 show known lists
new <title>           create a list
open <id>             open a list
rename <title>        rename the open list
items                 show the open list's items
add <text>            add an item
toggle <id>           flip an item's done flag
rm <id>               remove an item
clear                 remove every item
bulk <text>           expand free text into items
notices               show pending notices
dismiss <id>          dismiss a notice
chat <app>            open a chat app by name
say <text>            send a chat message
msgs                  show chat messages
quit                  exit
`)
}
