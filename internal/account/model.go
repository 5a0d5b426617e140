package account

// Stats 是账号的累计战绩，终局时落账。
type Stats struct {
	Wins        int `json:"wins"`
	GamesPlayed int `json:"gamesPlayed"`
}

// Account 注册账号。密码散列永不出现在任何对外序列化里。
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Nickname     string `json:"nickname"`
	Stats        Stats  `json:"stats"`
}
