// Package room owns the 9-digit room identity a host advertises and a
// controller dials.
package room

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/BioHazard786/deskwarp/internal/version"
	"github.com/denisbrodbeck/machineid"
)

// Length is the number of digits in a room ID.
const Length = 9

var (
	ErrInvalidLength = fmt.Errorf("room id must be %d digits", Length)
	ErrNotNumeric    = errors.New("room id must only contain digits")
)

// ID is a 9-digit numeric room name.
type ID string

func (id ID) String() string { return string(id) }

// Grouped renders a valid ID as three space-separated groups of three.
func (id ID) Grouped() string {
	if Validate(string(id)) != nil {
		return string(id)
	}
	return string(id[:3]) + " " + string(id[3:6]) + " " + string(id[6:])
}

// Validate checks that id is exactly nine digits.
func Validate(id string) error {
	if len(id) != Length {
		return ErrInvalidLength
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ErrNotNumeric
		}
	}
	return nil
}

// Parse reads raw into the digit form and returns it as an ID. Whitespace
// and the grouping spaces or dashes users type ("123 456 789") are ignored.
func Parse(raw string) (ID, error) {
	var d Digits
	if err := d.Set(strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(raw)); err != nil {
		return "", err
	}
	return d.ID(), nil
}

// MachineID returns a stable, app-scoped identifier for this machine.
func MachineID() (string, error) {
	return machineid.ProtectedID(version.AppID)
}

// Generate creates a room ID. A random ID is three 100..999 groups; otherwise
// the ID is derived from machineID so it survives restarts. A failing
// machineID falls back to random.
func Generate(random bool, machineID func() (string, error)) (ID, error) {
	if !random && machineID != nil {
		raw, err := machineID()
		if err == nil && raw != "" {
			return fromMachine(raw), nil
		}
	}

	var b strings.Builder
	for range 3 {
		n, err := rand.Int(rand.Reader, big.NewInt(900))
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		fmt.Fprintf(&b, "%d", n.Int64()+100)
	}
	return ID(b.String()), nil
}

// fromMachine hashes the identifier into a large decimal number and takes
// nine digits out of its middle.
func fromMachine(raw string) ID {
	sum := sha256.Sum256([]byte(raw))
	digits := new(big.Int).SetBytes(sum[:]).String()
	for len(digits) < Length+3 {
		digits += "0"
	}
	return ID(digits[3 : 3+Length])
}

// Digits is the per-digit view of a room ID shown in the connect form.
type Digits [Length]int

// Set replaces d with the digits of id. Invalid input leaves d untouched.
func (d *Digits) Set(id string) error {
	if err := Validate(id); err != nil {
		return err
	}
	for i := range Length {
		d[i] = int(id[i] - '0')
	}
	return nil
}

// ID joins the digits back into a room ID.
func (d Digits) ID() ID {
	var b strings.Builder
	for _, digit := range d {
		b.WriteByte(byte('0' + digit))
	}
	return ID(b.String())
}
