package testutils

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"
)

// Scoreboard is the storage layout of a small contract used across the gateway tests:
//
//	uint256 latest;                               // slot 0
//	string name;                                  // slot 1
//	mapping(uint256 => uint256) highscores;       // slot 2
//	mapping(uint256 => string) highscorers;       // slot 3
//	uint256 zero;                                 // slot 4, never written
//	mapping(string => string) nicknames;          // slot 5
const (
	ScoreboardLatestSlot      = 0
	ScoreboardNameSlot        = 1
	ScoreboardHighscoresSlot  = 2
	ScoreboardHighscorersSlot = 3
	ScoreboardZeroSlot        = 4
	ScoreboardNicknamesSlot   = 5

	ScoreboardLatest    = 42
	ScoreboardName      = "Satoshi"
	ScoreboardHighscore = 12345
	ScoreboardLeader    = "Hal Finney"
	ScoreboardLongName  = "Hubert Blaine Wolfeschlegelsteinhausenbergerdorff Sr."
)

// ScoreboardNicknames are the entries of the nicknames mapping.
var ScoreboardNicknames = map[string]string{
	"Money Skeleton": "Vitalik Buterin",
	ScoreboardLeader: "Hal",
}

// ScoreboardStorage returns every non-zero word of a populated Scoreboard.
func ScoreboardStorage() map[common.Hash]common.Hash {
	out := make(map[common.Hash]common.Hash)
	out[SlotOf(ScoreboardLatestSlot)] = SlotOf(ScoreboardLatest)
	maps.Copy(out, EncodeBytes(SlotOf(ScoreboardNameSlot), []byte(ScoreboardName)))
	out[MappingSlot(SlotOf(ScoreboardHighscoresSlot), SlotOf(ScoreboardLatest).Bytes())] = SlotOf(ScoreboardHighscore)
	maps.Copy(out, EncodeBytes(MappingSlot(SlotOf(ScoreboardHighscorersSlot), SlotOf(ScoreboardLatest).Bytes()), []byte(ScoreboardLeader)))
	maps.Copy(out, EncodeBytes(MappingSlot(SlotOf(ScoreboardHighscorersSlot), SlotOf(1).Bytes()), []byte(ScoreboardLongName)))
	for k, v := range ScoreboardNicknames {
		maps.Copy(out, EncodeBytes(MappingSlot(SlotOf(ScoreboardNicknamesSlot), []byte(k)), []byte(v)))
	}
	return out
}
