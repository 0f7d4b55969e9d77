package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20JSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const tokenMessengerV2JSON = `[
  {"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},
    {"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"},{"name":"maxFee","type":"uint256"},
    {"name":"minFinalityThreshold","type":"uint32"}],"outputs":[]},
  {"type":"function","name":"depositForBurnWithHook","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},
    {"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"},{"name":"maxFee","type":"uint256"},
    {"name":"minFinalityThreshold","type":"uint32"},{"name":"hookData","type":"bytes"}],"outputs":[]}
]`

const tokenMessengerV1JSON = `[
  {"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},
    {"name":"burnToken","type":"address"}],"outputs":[{"name":"_nonce","type":"uint64"}]},
  {"type":"function","name":"depositForBurnWithCaller","stateMutability":"nonpayable","inputs":[
    {"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},
    {"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"}],"outputs":[{"name":"nonce","type":"uint64"}]}
]`

const messageTransmitterJSON = `[
  {"type":"function","name":"receiveMessage","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]},
  {"type":"function","name":"usedNonces","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"MessageSent","anonymous":false,"inputs":[{"indexed":false,"name":"message","type":"bytes"}]}
]`

const hookReceiverJSON = `[
  {"type":"function","name":"mintAndLog","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[]}
]`

const handleRegistryJSON = `[
  {"type":"function","name":"handleToMemberId","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"members","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},{"name":"wallet","type":"address"},{"name":"joinedBlock","type":"uint256"},{"name":"isActive","type":"bool"}]},
  {"type":"event","name":"MemberCreated","anonymous":false,"inputs":[{"indexed":true,"name":"memberId","type":"uint256"},{"indexed":false,"name":"wallet","type":"address"}]},
  {"type":"event","name":"HandleAdded","anonymous":false,"inputs":[{"indexed":true,"name":"memberId","type":"uint256"},{"indexed":false,"name":"platform","type":"string"},{"indexed":false,"name":"username","type":"string"}]}
]`

var (
	ERC20ABI              = mustParseABI("ERC20", erc20JSON)
	TokenMessengerV2ABI   = mustParseABI("TokenMessengerV2", tokenMessengerV2JSON)
	TokenMessengerV1ABI   = mustParseABI("TokenMessenger", tokenMessengerV1JSON)
	MessageTransmitterABI = mustParseABI("MessageTransmitter", messageTransmitterJSON)
	HookReceiverABI       = mustParseABI("HookReceiver", hookReceiverJSON)
	HandleRegistryABI     = mustParseABI("HandleRegistry", handleRegistryJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s abi: %v", name, err))
	}
	return parsed
}
