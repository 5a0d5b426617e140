package player

// 玩家默认最大血量（创建房间时可自定义 1-99）
const DefaultMaxHealth = 10

// 手上持有 4 时视为持盾，受到伤害时减免 0.5
const shieldDigit = 4

// Player 是座位级别的可变状态。座位号 ID 在整局游戏中不变，
// 玩家掉线只标记死亡、不从 players 中移除，保证回合指针稳定。
type Player struct {
	ID       int
	Name     string
	Username string // 账号名，仅服务端可见
	ConnID   string // 当前 websocket 连接

	MaxHealth float64
	Health    float64
	Hands     [2]int
	Alive     bool

	// 一次性的伤害翻倍标记，由力量药水组合技激活
	StrengthPotion bool
	// 锻造组合技只增不减
	SwordLevel int
	// 本局已生效（banked）的组合技，组合被破坏后可重新凑出
	UsedCombos map[string]struct{}
}

func New(name string, id int, connID, username string, initialHealth float64, initialHands [2]int) *Player {
	if initialHealth <= 0 {
		initialHealth = DefaultMaxHealth
	}
	return &Player{
		ID:         id,
		Name:       name,
		Username:   username,
		ConnID:     connID,
		MaxHealth:  initialHealth,
		Health:     initialHealth,
		Hands:      initialHands,
		Alive:      true,
		SwordLevel: 1,
		UsedCombos: make(map[string]struct{}),
	}
}

// TakeDamage 扣血：持盾（手上有4）先减免 0.5，血量到 0 即死亡。
// 除复活组合技外 Alive 不会再变回 true。
func (p *Player) TakeDamage(damage float64) {
	if p.HasDigit(shieldDigit) {
		damage -= 0.5
	}
	if damage < 0 {
		damage = 0
	}
	p.Health -= damage
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
	}
}

// Heal 回血，不超过 MaxHealth。
func (p *Player) Heal(amount float64) {
	p.Health += amount
	if p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
}

// HasDigit 判断任一只手是否持有指定数字。
func (p *Player) HasDigit(n int) bool {
	return p.Hands[0] == n || p.Hands[1] == n
}

// HandIndexOf 返回持有指定数字的手的下标，没有则返回 -1（优先手 0）。
func (p *Player) HandIndexOf(n int) int {
	if p.Hands[0] == n {
		return 0
	}
	if p.Hands[1] == n {
		return 1
	}
	return -1
}
