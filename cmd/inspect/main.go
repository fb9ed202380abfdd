// Command inspect dumps the content of a voynich Badger database: every room
// with its expiration, and every message a room owns. Content stays sealed
// unless the encryption key is provided with -key.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"voynich/domain"
	"voynich/infrastructure/crypto"
	"voynich/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	key := flag.String("key", "", "Encryption key; when set, message content is opened")
	roomFilter := flag.String("room", "", "Only show this room id")
	flag.Parse()

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	var box *crypto.Box
	if *key != "" {
		if box, err = crypto.NewBox(*key); err != nil {
			log.Fatal("Bad encryption key: ", err)
		}
	}

	repository := storage.NewRoomRepository(db, slog.Default(), clock.New())
	rooms, err := repository.ListRooms()
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	table := newTable([]string{"Room", "Created", "Expires", "State", "Messages"})
	for _, room := range rooms {
		if *roomFilter != "" && string(room.ID) != *roomFilter {
			continue
		}
		messages, err := repository.ListMessages(room.ID)
		if err != nil {
			log.Fatal(err)
		}
		table.Append([]string{
			string(room.ID),
			room.CreatedAt.Format(time.RFC3339),
			room.ExpiresAt.Format(time.RFC3339),
			state(room, now),
			fmt.Sprintf("%d", len(messages)),
		})
	}
	table.Render()

	if *roomFilter == "" {
		return
	}

	fmt.Println()
	messages, err := repository.ListMessages(domain.RoomID(*roomFilter))
	if err != nil {
		log.Fatal(err)
	}
	detail := newTable([]string{"Time", "Sender", "Content", "Attachment"})
	for _, msg := range messages {
		detail.Append([]string{
			msg.CreatedAt.Format("15:04:05"),
			msg.Sender,
			content(box, msg.Content),
			attachmentLabel(box, msg),
		})
	}
	detail.Render()
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func state(room domain.Room, now time.Time) string {
	if room.Expired(now) {
		return color.Red.Sprint("EXPIRED")
	}
	return color.Green.Sprint("LIVE")
}

func content(box *crypto.Box, sealed string) string {
	if box == nil {
		return truncate(sealed, 40)
	}
	opened, err := box.Open(sealed)
	if err != nil {
		return color.Red.Sprint("<cannot open>")
	}
	return truncate(string(opened), 60)
}

func attachmentLabel(box *crypto.Box, msg domain.SealedMessage) string {
	if msg.Attachment == nil {
		return ""
	}
	if box == nil {
		return "<sealed>"
	}
	name, err := box.Open(msg.Attachment.Name)
	if err != nil {
		return color.Red.Sprint("<cannot open>")
	}
	return string(name)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
