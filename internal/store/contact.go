package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Klingon-tech/warpwallet/internal/storage"
)

// Contact is an address book entry. Dirty contacts have changed since they
// were last saved on chain.
type Contact struct {
	ID      uint32 `json:"id"`
	Account uint32 `json:"account"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Dirty   bool   `json:"dirty"`
}

func contactKey(id uint32) []byte {
	return key(prefixContact, u32(id))
}

// PutContact creates or updates a contact and marks it dirty.
func PutContact(rw storage.ReadWriter, c *Contact) error {
	if c.ID == 0 {
		id, err := nextID(rw, keyContactNext)
		if err != nil {
			return err
		}
		c.ID = id
	}
	c.Dirty = true
	return putJSON(rw, contactKey(c.ID), c)
}

// GetContact loads a contact.
func GetContact(r storage.Reader, id uint32) (*Contact, error) {
	return getJSON[Contact](r, contactKey(id), fmt.Sprintf("contact %d", id))
}

// DeleteContact removes a contact.
func DeleteContact(rw storage.ReadWriter, id uint32) error {
	if _, err := GetContact(rw, id); err != nil {
		return err
	}
	return rw.Delete(contactKey(id))
}

// Contacts returns the contacts of an account ordered by name.
func Contacts(r storage.Reader, account uint32) ([]*Contact, error) {
	cs, err := collect(r, prefixContact, func(c *Contact) bool { return c.Account == account })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
	return cs, nil
}

// ContactName returns the name of the contact with the given address, or "".
func ContactName(r storage.Reader, account uint32, address string) (string, error) {
	cs, err := collect(r, prefixContact, func(c *Contact) bool {
		return c.Account == account && c.Address == address
	})
	if err != nil || len(cs) == 0 {
		return "", err
	}
	return cs[0].Name, nil
}

// DirtyContacts returns the contacts changed since the last save.
func DirtyContacts(r storage.Reader, account uint32) ([]*Contact, error) {
	return collect(r, prefixContact, func(c *Contact) bool { return c.Account == account && c.Dirty })
}

// MarkContactsSaved clears the dirty flag of an account's contacts.
func MarkContactsSaved(rw storage.ReadWriter, account uint32) error {
	cs, err := DirtyContacts(rw, account)
	if err != nil {
		return err
	}
	for _, c := range cs {
		c.Dirty = false
		if err := putJSON(rw, contactKey(c.ID), c); err != nil {
			return err
		}
	}
	return nil
}

// contactsMemoHeader starts a memo that carries an address book.
const contactsMemoHeader = "contacts\n"

// ContactsMemo serializes contacts one per line as name\taddress for saving
// on chain in a memo.
func ContactsMemo(cs []*Contact) string {
	var b strings.Builder
	b.WriteString(contactsMemoHeader)
	for _, c := range cs {
		fmt.Fprintf(&b, "%s\t%s\n", c.Name, c.Address)
	}
	return b.String()
}

// ParseContactsMemo is the inverse of ContactsMemo. It reports false for
// memos that are not address books.
func ParseContactsMemo(memo string) ([]Contact, bool) {
	rest, ok := strings.CutPrefix(memo, contactsMemoHeader)
	if !ok {
		return nil, false
	}
	var out []Contact
	for _, line := range strings.Split(rest, "\n") {
		name, addr, ok := strings.Cut(line, "\t")
		if !ok || addr == "" {
			continue
		}
		out = append(out, Contact{Name: name, Address: addr})
	}
	return out, true
}

// RestoreContacts adds contacts recovered from an address book memo. Known
// addresses are skipped and restored contacts are not dirty.
func RestoreContacts(rw storage.ReadWriter, account uint32, cs []Contact) (int, error) {
	added := 0
	for _, c := range cs {
		name, err := ContactName(rw, account, c.Address)
		if err != nil {
			return added, err
		}
		if name != "" {
			continue
		}
		id, err := nextID(rw, keyContactNext)
		if err != nil {
			return added, err
		}
		nc := Contact{ID: id, Account: account, Name: c.Name, Address: c.Address}
		if err := putJSON(rw, contactKey(id), &nc); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
