package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// MessagePrefix starts a memo that carries a structured message.
const MessagePrefix = "\U0001F6E1MSG\n"

// Message is a memo shown as a message.
type Message struct {
	ID          uint32     `json:"id"`
	Account     uint32     `json:"account"`
	TxID        types.Hash `json:"txid"`
	Height      uint32     `json:"height"`
	Timestamp   uint64     `json:"timestamp"`
	OutputIndex uint32     `json:"vout"`
	Incoming    bool       `json:"incoming"`
	Sender      string     `json:"sender,omitempty"`
	Recipient   string     `json:"recipient,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Body        string     `json:"body"`
	Read        bool       `json:"read"`
}

// ParseMemo splits a memo into sender, subject and body. A memo without the
// message prefix is all body.
func ParseMemo(memo string) (sender, subject, body string) {
	rest, ok := strings.CutPrefix(memo, MessagePrefix)
	if !ok {
		return "", "", memo
	}
	parts := strings.SplitN(rest, "\n", 3)
	switch len(parts) {
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	}
	return parts[0], parts[1], parts[2]
}

// FormatMemo builds a message memo.
func FormatMemo(sender, subject, body string) string {
	return MessagePrefix + sender + "\n" + subject + "\n" + body
}

func messageKey(id uint32) []byte {
	return key(prefixMessage, u32(id))
}

func messageLookupKey(m *Message) []byte {
	dir := byte(0)
	if m.Incoming {
		dir = 1
	}
	return key(prefixMsgLookup, u32(m.Account), m.TxID[:], u32(m.OutputIndex), []byte{dir})
}

// PutMessage writes a message, allocating an id for new ones. A message for
// the same account, transaction, output and direction keeps its id and read
// flag.
func PutMessage(rw storage.ReadWriter, m *Message) error {
	if m.ID == 0 {
		data, err := rw.Get(messageLookupKey(m))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			id, err := nextID(rw, keyMessageNext)
			if err != nil {
				return err
			}
			m.ID = id
		case err != nil:
			return err
		default:
			prev, err := GetMessage(rw, binary.BigEndian.Uint32(data))
			if err != nil {
				return err
			}
			m.ID, m.Read = prev.ID, prev.Read
		}
	}
	if err := rw.Put(messageLookupKey(m), u32(m.ID)); err != nil {
		return err
	}
	return putJSON(rw, messageKey(m.ID), m)
}

func deleteMessage(rw storage.ReadWriter, m *Message) error {
	if err := rw.Delete(messageLookupKey(m)); err != nil {
		return err
	}
	return rw.Delete(messageKey(m.ID))
}

// GetMessage loads a message.
func GetMessage(r storage.Reader, id uint32) (*Message, error) {
	return getJSON[Message](r, messageKey(id), fmt.Sprintf("message %d", id))
}

// Messages returns the messages of an account ordered by height then id.
func Messages(r storage.Reader, account uint32) ([]*Message, error) {
	msgs, err := collect(r, prefixMessage, func(m *Message) bool { return m.Account == account })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Height != msgs[j].Height {
			return msgs[i].Height < msgs[j].Height
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// AdjacentMessage returns the message before (next=false) or after
// (next=true) message id in height order. With bySubject only messages with
// the same subject are considered.
func AdjacentMessage(r storage.Reader, id uint32, next, bySubject bool) (*Message, error) {
	cur, err := GetMessage(r, id)
	if err != nil {
		return nil, err
	}
	msgs, err := Messages(r, cur.Account)
	if err != nil {
		return nil, err
	}
	if bySubject {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.Subject == cur.Subject {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	for i, m := range msgs {
		if m.ID != id {
			continue
		}
		j := i - 1
		if next {
			j = i + 1
		}
		if j < 0 || j >= len(msgs) {
			break
		}
		return msgs[j], nil
	}
	return nil, fmt.Errorf("no message adjacent to %d: %w", id, walleterr.ErrNotFound)
}

// MarkRead sets the read flag of a message.
func MarkRead(rw storage.ReadWriter, id uint32, read bool) error {
	m, err := GetMessage(rw, id)
	if err != nil {
		return err
	}
	m.Read = read
	return putJSON(rw, messageKey(id), m)
}

// MarkAllRead marks every message of an account read.
func MarkAllRead(rw storage.ReadWriter, account uint32) error {
	msgs, err := collect(rw, prefixMessage, func(m *Message) bool { return m.Account == account && !m.Read })
	if err != nil {
		return err
	}
	for _, m := range msgs {
		m.Read = true
		if err := putJSON(rw, messageKey(m.ID), m); err != nil {
			return err
		}
	}
	return nil
}

// UnreadCount returns the number of unread messages of an account.
func UnreadCount(r storage.Reader, account uint32) (int, error) {
	msgs, err := collect(r, prefixMessage, func(m *Message) bool { return m.Account == account && !m.Read })
	return len(msgs), err
}
