// Command drift is a terminal client for the Orbit anonymous chat server.
//
// Type to chat. Commands: /next, /leave, /home, /search, /report [reason],
// /quit.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/orbit/chat-app/internal/client"
	"github.com/orbit/chat-app/internal/config"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	url := flag.String("url", cfg.ServerURL, "WebSocket server URL")
	gender := flag.String("gender", "", "your gender: male, female or nonbinary")
	lookingFor := flag.String("looking-for", "", "who to talk to: male, female or everyone")
	interests := flag.String("interests", "", "comma separated interests")
	wait := flag.Duration("wait", cfg.Wait, "expand the search after this long without a match (0 waits forever)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := client.Dial(ctx, *url)
	cancel()
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	r := newRenderer(os.Stdout)
	m := client.NewMachine(conn, client.Options{
		TypingIdle: cfg.TypingIdle,
		OnChange:   r.render,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := conn.Run(m.Handle); err != nil {
			log.Printf("[drift] connection lost: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	form := client.Form{Gender: *gender, LookingFor: *lookingFor, Interests: *interests, Wait: *wait}
	if err := m.Submit(form); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(m, form, line); quit {
				return
			}
		}
	}
}

// handleLine applies one line of user input. It reports whether the user
// asked to quit.
func handleLine(m *client.Machine, form client.Form, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch cmd, arg, _ := strings.Cut(line, " "); cmd {
	case "/quit":
		return true
	case "/next":
		err = m.Next()
	case "/leave":
		err = m.Leave()
	case "/home":
		m.Home()
	case "/search":
		err = m.Submit(form)
	case "/report":
		err = m.Report(arg)
		if err == nil {
			fmt.Println("-- Report sent.")
		}
	default:
		err = m.Send(line)
	}

	if errors.Is(err, client.ErrWrongState) {
		fmt.Println("-- Not now.")
	} else if err != nil {
		fmt.Printf("-- %v\n", err)
	}
	return false
}
