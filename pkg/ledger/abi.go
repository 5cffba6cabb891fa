package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Base methods exist on every deployed version; the rest are v5 extensions
// and may be absent. The roster has at most three members, read either in one
// getVoters() call or per-index through voters(i).
const contractABIJSON = `[
  {"inputs":[{"internalType":"bytes32","name":"elementId","type":"bytes32"},{"internalType":"uint8","name":"newStage","type":"uint8"}],"name":"setStage","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"elementId","type":"bytes32"},{"internalType":"string","name":"note","type":"string"}],"name":"setNote","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"name":"stageOf","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"name":"noteOf","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"name":"updatedAt","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"version","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"pure","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"voters","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getVoters","outputs":[{"internalType":"address[3]","name":"","type":"address[3]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"elementId","type":"bytes32"},{"internalType":"address","name":"voter","type":"address"}],"name":"hasVoted","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"elementId","type":"bytes32"}],"name":"approvalsOf","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes32","name":"elementId","type":"bytes32"},{"internalType":"bool","name":"approve","type":"bool"}],"name":"vote","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// rosterSize is the contract's fixed voter roster bound.
const rosterSize = 3

var contractABI = mustParseABI(contractABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("ledger: bad contract ABI: " + err.Error())
	}
	return parsed
}
