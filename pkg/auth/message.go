package auth

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signInSuffix = " wants you to sign in with your Ethereum account:"

// challengeMessage is the sign-in-with-Ethereum shaped plaintext the wallet
// signs. Only the fields the gate verifies are parsed.
type challengeMessage struct {
	Domain  string
	Address string
	Nonce   string
	ChainID uint64
}

func parseChallengeMessage(raw string) (challengeMessage, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return challengeMessage{}, ErrBadInput
	}
	msg := challengeMessage{ChainID: 1}
	if strings.HasSuffix(lines[0], signInSuffix) {
		msg.Domain = strings.TrimSuffix(lines[0], signInSuffix)
	}
	msg.Address = strings.TrimSpace(lines[1])
	if !strings.HasPrefix(msg.Address, "0x") || len(msg.Address) != 42 {
		return challengeMessage{}, ErrBadInput
	}
	for _, line := range lines[2:] {
		switch {
		case strings.HasPrefix(line, "Nonce: "):
			msg.Nonce = strings.TrimSpace(strings.TrimPrefix(line, "Nonce: "))
		case strings.HasPrefix(line, "Chain ID: "):
			if v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "Chain ID: ")), 10, 64); err == nil {
				msg.ChainID = v
			}
		}
	}
	if msg.Nonce == "" {
		return challengeMessage{}, ErrBadInput
	}
	return msg, nil
}

// recoverAddress resolves an EIP-191 personal-sign signature over message to
// the signer's wallet address.
func recoverAddress(message, sigHex string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(sigHex))
	if err != nil || len(sig) != 65 {
		return "", ErrInvalidSignature
	}
	// Wallets emit V as 27/28; SigToPub wants 0/1.
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
