package telegram

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"dinner_recipe_bot/internal/domain"
)

type updateKind int

const (
	kindIgnored updateKind = iota
	kindCommand
	kindCallback
)

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

// routed is the dispatchable form of an update.
type routed struct {
	kind     updateKind
	command  domain.Command
	callback domain.Callback
	meta     updateMeta
}

func route(update *models.Update) routed {
	if update == nil {
		return routed{kind: kindIgnored, meta: updateMeta{updateType: "empty"}}
	}

	meta := extractUpdateMeta(update)

	switch {
	case update.Message != nil:
		name, args, ok := parseCommand(update.Message.Text)
		if !ok {
			return routed{kind: kindIgnored, meta: meta}
		}
		return routed{
			kind: kindCommand,
			command: domain.Command{
				Name:   name,
				Args:   args,
				UserID: meta.userID,
				ChatID: meta.chatID,
			},
			meta: meta,
		}

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		messageID, messageText, inaccessible := callbackMessage(q.Message)
		return routed{
			kind: kindCallback,
			callback: domain.Callback{
				ID:           q.ID,
				Data:         q.Data,
				UserID:       meta.userID,
				ChatID:       meta.chatID,
				MessageID:    messageID,
				MessageText:  messageText,
				Inaccessible: inaccessible,
			},
			meta: meta,
		}

	default:
		return routed{kind: kindIgnored, meta: meta}
	}
}

// parseCommand splits "/recipe@SomeBot vegan rice" into "recipe" and its
// whitespace separated arguments.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}

	return strings.ToLower(name), fields[1:], true
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			updateType: "edited_message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}

// callbackMessage returns the id and text of the message carrying the
// keyboard and whether that message is inaccessible. Inaccessible messages
// have no text.
func callbackMessage(msg models.MaybeInaccessibleMessage) (int, string, bool) {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0, "", true
		}
		return msg.Message.ID, msg.Message.Text, false
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0, "", true
		}
		return msg.InaccessibleMessage.MessageID, "", true
	default:
		return 0, "", true
	}
}
