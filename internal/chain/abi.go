package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	log "github.com/sirupsen/logrus"
)

// Bridge contract surface. The claim call carries an explicit batchId, the
// shape the batcher commits against.
const bridgeABIJSON = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"nonce","type":"uint256"},{"name":"batchId","type":"uint256"},{"name":"proof","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"forceWithdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"nonce","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"censorshipProof","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"},{"name":"nonce","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isProcessed","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"nonce","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var bridgeABI abi.ABI

func init() {
	var err error
	bridgeABI, err = abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		log.Fatalf("Failed to parse bridge ABI: %v", err)
	}
}
