package model

import "time"

const (
	JWTSecretFile     = "jwt_secrets.txt"   // 密钥文件名
	JWTSecretLifetime = 30 * 24 * time.Hour // 密钥有效期30天
	MinValidSecrets   = 2                   // 最少保留的有效密钥数
	SecretLength      = 64                  // 密钥长度
)

// 项目状态
const (
	ProjectStatusDraft  = 0 // 草稿
	ProjectStatusOpen   = 1 // 开放采集中
	ProjectStatusClosed = 2 // 已关闭
)

// 评分取值边界（滑块默认区间）
const (
	ScoreValueMin = -1.0
	ScoreValueMax = 1.0
)
