package combo

import (
	"strings"

	"HandClash/internal/game/player"
)

// 组合技标识。命名沿用线上协议，客户端按同名渲染按钮。
const (
	Forge     = "combo_forge"      // {5,4} 锻造：剑升级
	Strength  = "combo_strength"   // 8/8 力量药水：下一次伤害翻倍
	Heal      = "combo_heal"       // 9/9 治疗：回 2 血
	ExtraTurn = "combo_extra_turn" // {7,8} 额外回合
	LifeLink  = "combo_life_link"  // 0/0 生命链接：与目标平均血量
	Reset     = "combo_reset"      // {0,1|2} 重置：目标较大的一只手归 1
	Resurrect = "combo_resurrect"  // {0,9} 复活：复活一名死亡玩家
)

// ordered 固定了对客户端展示的顺序
var ordered = []string{Forge, Strength, Heal, ExtraTurn, LifeLink, Reset, Resurrect}

// Active 返回当前手牌满足的全部组合技图样，不考虑是否已生效。
// 组合技是一种持续的手牌状态，而不是一次性的消耗品。
func Active(hands [2]int) map[string]struct{} {
	has := func(n int) bool { return hands[0] == n || hands[1] == n }
	out := make(map[string]struct{})
	if has(5) && has(4) {
		out[Forge] = struct{}{}
	}
	if hands[0] == 8 && hands[1] == 8 {
		out[Strength] = struct{}{}
	}
	if hands[0] == 9 && hands[1] == 9 {
		out[Heal] = struct{}{}
	}
	if has(7) && has(8) {
		out[ExtraTurn] = struct{}{}
	}
	if hands[0] == 0 && hands[1] == 0 {
		out[LifeLink] = struct{}{}
	}
	if has(0) && (has(1) || has(2)) {
		out[Reset] = struct{}{}
	}
	if has(0) && has(9) {
		out[Resurrect] = struct{}{}
	}
	return out
}

// Detect 返回玩家当前可用的组合技：图样成立且本局尚未生效。
func Detect(p *player.Player) []string {
	active := Active(p.Hands)
	combos := make([]string, 0, len(active))
	for _, id := range ordered {
		if _, ok := active[id]; !ok {
			continue
		}
		if _, used := p.UsedCombos[id]; used {
			continue
		}
		combos = append(combos, id)
	}
	return combos
}

// ResetBroken 在每次手牌变化后调用：已生效但图样不再成立的组合技
// 被移出 UsedCombos（重新凑出后可再次使用），返回被破坏的标识列表。
func ResetBroken(p *player.Player) []string {
	active := Active(p.Hands)
	var broken []string
	for _, id := range ordered {
		if _, used := p.UsedCombos[id]; !used {
			continue
		}
		if _, ok := active[id]; !ok {
			delete(p.UsedCombos, id)
			broken = append(broken, id)
		}
	}
	return broken
}

// Category 取标识的展示类别，例如 combo_extra_turn -> extra。
func Category(id string) string {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return id
	}
	return parts[1]
}
