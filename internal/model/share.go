package model

// Share 是分享注册表中的一行。Secret保存的是bcrypt哈希，原始密钥只在创建时返回给客户端一次
type Share struct {
	ShareID   string `gorm:"column:share_id;primaryKey;type:varchar(64)"`
	SessionID string `gorm:"column:session_id;type:varchar(255);not null;index"`
	Secret    string `gorm:"column:secret;type:varchar(255);not null"`
	// 毫秒时间戳
	CreatedAt int64 `gorm:"column:created_at;autoCreateTime:milli"`
}

func (Share) TableName() string {
	return "shares"
}
