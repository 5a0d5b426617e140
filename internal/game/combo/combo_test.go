package combo

import (
	"testing"

	"HandClash/internal/game/player"

	"github.com/stretchr/testify/assert"
)

func newPlayer(hands [2]int) *player.Player {
	return player.New("A", 0, "conn-a", "usera", 10, hands)
}

func TestActivePatterns(t *testing.T) {
	cases := []struct {
		name  string
		hands [2]int
		want  []string
	}{
		{"forge", [2]int{5, 4}, []string{Forge}},
		{"forge order-insensitive", [2]int{4, 5}, []string{Forge}},
		{"strength", [2]int{8, 8}, []string{Strength}},
		{"heal", [2]int{9, 9}, []string{Heal}},
		{"extra turn", [2]int{7, 8}, []string{ExtraTurn}},
		{"life link", [2]int{0, 0}, []string{LifeLink}},
		{"reset with 1", [2]int{0, 1}, []string{Reset}},
		{"reset with 2", [2]int{2, 0}, []string{Reset}},
		{"resurrect", [2]int{0, 9}, []string{Resurrect}},
		{"nothing", [2]int{1, 3}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			active := Active(tc.hands)
			assert.Len(t, active, len(tc.want))
			for _, id := range tc.want {
				assert.Contains(t, active, id)
			}
		})
	}
}

func TestDetectSkipsBankedCombos(t *testing.T) {
	p := newPlayer([2]int{8, 8})
	assert.Equal(t, []string{Strength}, Detect(p))

	// 已生效的组合技在图样持续成立期间不再提供
	p.UsedCombos[Strength] = struct{}{}
	assert.Empty(t, Detect(p))
}

func TestResetBrokenFreesBankedCombo(t *testing.T) {
	p := newPlayer([2]int{8, 8})
	p.UsedCombos[Strength] = struct{}{}

	// 图样没破，什么都不发生
	assert.Empty(t, ResetBroken(p))
	assert.Contains(t, p.UsedCombos, Strength)

	// 一只手变掉，图样破坏，组合技解除占用
	p.Hands[0] = 3
	broken := ResetBroken(p)
	assert.Equal(t, []string{Strength}, broken)
	assert.NotContains(t, p.UsedCombos, Strength)

	// 重新凑出后又可以提供
	p.Hands[0] = 8
	assert.Equal(t, []string{Strength}, Detect(p))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "forge", Category(Forge))
	assert.Equal(t, "extra", Category(ExtraTurn))
}
