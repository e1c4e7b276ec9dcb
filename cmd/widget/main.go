package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"supportchat/internal/adapter/repository"
	"supportchat/internal/adapter/rest"
	"supportchat/internal/infrastructure/transport"
	"supportchat/internal/usecase"
	"supportchat/pkg/config"
)

// The widget binary is a console harness around the chat session: it renders
// the message view model to stdout and maps simple commands onto session
// operations.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sessionRepo, err := repository.NewPebbleSessionRepository(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open session store at %s: %v", cfg.DataDir, err)
	}
	defer sessionRepo.Close()

	client := transport.NewClient(cfg.ServerURL, cfg.APIKey, cfg.Domain, cfg.RequestTimeout)
	store := usecase.NewMessageStore(consoleSink{})
	views := usecase.NewViewController()
	views.OnChange(func(view usecase.View) {
		fmt.Printf("== %s ==\n", view)
	})

	history := rest.NewHistoryClient(cfg.ServerURL, cfg.APIKey)
	session := usecase.NewChatSession(client, sessionRepo, history, store, views, consoleNotifier{}, cfg.APIKey, cfg.Domain)

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer session.Close()

	fmt.Println("Commands: /register <name> <email> <phone>, /direct, /public, /join <room>, /leave, /back, /logout, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			session.SendText(ctx, line)
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/register":
			if len(fields) < 4 {
				fmt.Println("Usage: /register <name> <email> <phone>")
				continue
			}
			session.Register(ctx, usecase.RegistrationInput{
				Name:       fields[1],
				Email:      fields[2],
				Phone:      fields[3],
				NextAction: views.NextAction(),
			})
		case "/direct":
			session.StartDirectChat(ctx)
		case "/public":
			session.ShowPublicRooms(ctx)
			for _, room := range session.PublicRooms() {
				fmt.Printf("  %s  %s (%d online)\n", room.ID, room.Name, room.MemberCount)
			}
		case "/join":
			if len(fields) < 2 {
				fmt.Println("Usage: /join <room>")
				continue
			}
			session.JoinPublicRoom(ctx, fields[1])
		case "/leave":
			session.LeavePublicRoom(ctx)
		case "/back":
			session.NavigateBack(ctx)
		case "/logout":
			session.Logout(ctx)
		case "/quit":
			return
		default:
			fmt.Printf("Unknown command %s\n", fields[0])
		}
	}
}

type consoleSink struct{}

func (consoleSink) Appended(view *usecase.MessageView) {
	fmt.Printf("[%s] %s\n", view.Sender, view.Content)
}

func (consoleSink) Updated(view *usecase.MessageView) {
	if view.Failed {
		fmt.Printf("[%s] %s (failed to send)\n", view.Sender, view.Content)
	}
}

func (consoleSink) Cleared() {
	fmt.Println("--------")
}

type consoleNotifier struct{}

func (consoleNotifier) Notify(level usecase.Level, message string) {
	fmt.Printf("(%s) %s\n", level, message)
}
