package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"rpworld/backend/internal/api/handler"
	"rpworld/backend/internal/app"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

const usage = `Usage: admin <command> [args]

  migrate
  setadmin <character> <level>
  token runtime
  token admin <character>
  reports <staff>
  ban <staff> <character> <hours, 0 = permanent> <reason>
  unban <staff> <character> <reason>
  close-report <staff> <report_id> <resolution>`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	ctx := context.Background()

	command, args := os.Args[1], os.Args[2:]
	if command == "migrate" {
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Println("Migrations applied.")
		return
	}
	if command == "token" {
		issueToken(ctx, cfg, storage.NewStorageService(db), args)
		return
	}

	// Everything else goes through the engines so permission checks and the
	// audit log apply exactly as in game.
	a, err := app.New(cfg, db, nil, nil, zap.NewNop())
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := a.Load(ctx); err != nil {
		log.Fatalf("load state: %v", err)
	}

	switch command {
	case "setadmin":
		need(args, 2, "setadmin <character> <level>")
		target := character(ctx, a.Store, args[0])
		level, err := strconv.Atoi(args[1])
		if err != nil || level < 0 || level > config.MaxAdminLevel {
			log.Fatalf("level must be 0..%d", config.MaxAdminLevel)
		}
		if err := a.Permissions.SetLevel(ctx, target, level, permission.Ladder(level), 0); err != nil {
			log.Fatalf("set level: %v", err)
		}
		fmt.Printf("%s is now admin level %d.\n", args[0], level)

	case "reports":
		need(args, 1, "reports <staff>")
		reports, err := a.Moderation.ListOpenReports(character(ctx, a.Store, args[0]))
		if err != nil {
			log.Fatalf("list reports: %v", err)
		}
		for _, r := range reports {
			fmt.Printf("#%d [%s] %d -> %d %s: %s\n", r.ID, r.Status, r.ReporterID, r.ReportedID, r.Reason, r.Description)
		}
		fmt.Printf("%d open report(s).\n", len(reports))

	case "ban":
		need(args, 4, "ban <staff> <character> <hours> <reason>")
		hours, err := strconv.Atoi(args[2])
		if err != nil || hours < 0 {
			log.Fatal("Invalid duration. Please provide a non-negative number of hours.")
		}
		ban, err := a.Moderation.Ban(ctx, character(ctx, a.Store, args[0]), character(ctx, a.Store, args[1]),
			strings.Join(args[3:], " "), time.Duration(hours)*time.Hour)
		if err != nil {
			log.Fatalf("Error banning %s: %v", args[1], err)
		}
		fmt.Printf("%s has been banned (ban #%d).\n", args[1], ban.ID)

	case "unban":
		need(args, 3, "unban <staff> <character> <reason>")
		if err := a.Moderation.Unban(ctx, character(ctx, a.Store, args[0]), character(ctx, a.Store, args[1]), strings.Join(args[2:], " ")); err != nil {
			log.Fatalf("Error unbanning %s: %v", args[1], err)
		}
		fmt.Printf("%s has been unbanned.\n", args[1])

	case "close-report":
		need(args, 3, "close-report <staff> <report_id> <resolution>")
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			log.Fatal("Invalid report ID. Please provide an integer.")
		}
		if _, err := a.Moderation.CloseReport(ctx, character(ctx, a.Store, args[0]), uint(id), strings.Join(args[2:], " ")); err != nil {
			log.Fatalf("Error closing report: %v", err)
		}
		fmt.Printf("Report #%d closed.\n", id)

	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func need(args []string, n int, form string) {
	if len(args) < n {
		fmt.Println("Usage: admin " + form)
		os.Exit(1)
	}
}

func character(ctx context.Context, s *storage.Service, name string) uint {
	c, err := s.GetCharacterByName(ctx, name)
	if err != nil {
		log.Fatalf("character %q: %v", name, err)
	}
	return c.ID
}

func issueToken(ctx context.Context, cfg *config.Config, s *storage.Service, args []string) {
	need(args, 1, "token runtime | token admin <character>")
	var (
		role    = args[0]
		actorID uint
	)
	if role == handler.RoleAdmin {
		need(args, 2, "token admin <character>")
		actorID = character(ctx, s, args[1])
	}
	token, err := handler.GenerateToken([]byte(cfg.RuntimeSecret), role, actorID, cfg.RuntimeTokenTTL)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	fmt.Println(token)
}
