package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type IDStyle string

const (
	StyleSandwich IDStyle = "sandwich"
	StyleShort    IDStyle = "short"
	StyleUUID     IDStyle = "uuid"
)

const (
	shortAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
	shortIDLength  = 8
	wordSeparator  = "-"
	secretKeyBytes = 16
)

// IDGenerator produces candidate paste ids. Implementations never check
// uniqueness; the caller owns collision handling.
type IDGenerator interface {
	Generate() (string, error)
}

func ParseIDStyle(s string) (IDStyle, error) {
	switch IDStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleSandwich, "":
		return StyleSandwich, nil
	case StyleShort:
		return StyleShort, nil
	case StyleUUID:
		return StyleUUID, nil
	}
	return "", errors.Errorf("unknown id style %q", s)
}

func NewIDGenerator(style IDStyle) (IDGenerator, error) {
	switch style {
	case StyleSandwich:
		return &wordGen{
			lists: [][]string{adjectives, ingredients, ingredients, ingredients, carriers},
			sep:   wordSeparator,
		}, nil
	case StyleShort:
		return &charGen{alphabet: shortAlphabet, length: shortIDLength}, nil
	case StyleUUID:
		return uuidGen{}, nil
	}
	return nil, errors.Errorf("unknown id style %q", style)
}

type wordGen struct {
	lists [][]string
	sep   string
}

func (g *wordGen) Generate() (string, error) {
	words := make([]string, len(g.lists))
	for i, list := range g.lists {
		idx, err := randIndex(len(list))
		if err != nil {
			return "", err
		}
		words[i] = list[idx]
	}
	return strings.Join(words, g.sep), nil
}

// Space returns the number of distinct ids the generator can produce.
func (g *wordGen) Space() *big.Int {
	n := big.NewInt(1)
	for _, list := range g.lists {
		n.Mul(n, big.NewInt(int64(len(list))))
	}
	return n
}

type charGen struct {
	alphabet string
	length   int
}

func (g *charGen) Generate() (string, error) {
	buf := make([]byte, g.length)
	for i := range buf {
		idx, err := randIndex(len(g.alphabet))
		if err != nil {
			return "", err
		}
		buf[i] = g.alphabet[idx]
	}
	return string(buf), nil
}

type uuidGen struct{}

func (uuidGen) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "uuid")
	}
	return id.String(), nil
}

// randIndex draws uniformly from [0, n) using crypto/rand. rand.Int rejects
// out-of-range samples, so there is no modulo bias.
func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, errors.Wrap(err, "rand fail")
	}
	return int(v.Int64()), nil
}

// NewSecretKey returns 16 random bytes hex-encoded. It draws from crypto/rand
// independently of any IDGenerator.
func NewSecretKey() (string, error) {
	buf := make([]byte, secretKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	return hex.EncodeToString(buf), nil
}
