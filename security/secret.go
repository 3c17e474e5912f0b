package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"Guides-Server/model"
)

// JWTSecret 密钥及其生命周期
type JWTSecret struct {
	Secret    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

var rotationMutex sync.Mutex

// StartSecretRotation 启动后台密钥轮换
func StartSecretRotation() {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := RotateSecrets(); err != nil {
				log.Printf("密钥轮换失败: %v", err)
			}
		}
	}()
}

// RotateSecrets 生成新密钥并淘汰过期密钥
func RotateSecrets() error {
	rotationMutex.Lock()
	defer rotationMutex.Unlock()

	secrets, err := LoadSecrets()
	if err != nil {
		return fmt.Errorf("加载现有密钥失败: %v", err)
	}

	newSecret, err := generateNewSecret()
	if err != nil {
		return fmt.Errorf("生成新密钥失败: %v", err)
	}

	now := time.Now()
	updated := []JWTSecret{newSecret}
	for _, s := range secrets {
		if s.ExpiresAt.After(now) {
			updated = append(updated, s)
		}
	}

	// 保证至少保留两个密钥，避免正在使用的令牌立即失效
	if len(updated) < model.MinValidSecrets {
		for _, s := range secrets {
			if len(updated) >= model.MinValidSecrets {
				break
			}
			exists := false
			for _, u := range updated {
				if u.Secret == s.Secret {
					exists = true
					break
				}
			}
			if !exists {
				updated = append(updated, s)
			}
		}
	}

	if err := writeSecretsToFile(updated); err != nil {
		return fmt.Errorf("写入密钥文件失败: %v", err)
	}

	log.Printf("密钥轮换完成，当前密钥数量: %d", len(updated))
	return nil
}

// LoadSecrets 从密钥文件读取全部有效密钥，按创建时间降序
func LoadSecrets() ([]JWTSecret, error) {
	data, err := os.ReadFile(model.JWTSecretFile)
	if err != nil {
		if os.IsNotExist(err) {
			if err := InitializeSecretFile(); err != nil {
				return nil, err
			}
			data, err = os.ReadFile(model.JWTSecretFile)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	var secrets []JWTSecret
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			log.Printf("忽略格式错误的密钥行")
			continue
		}
		createdAt, err1 := time.Parse(time.RFC3339, parts[1])
		expiresAt, err2 := time.Parse(time.RFC3339, parts[2])
		if err1 != nil || err2 != nil {
			log.Printf("忽略时间格式错误的密钥行")
			continue
		}
		if err := validateSecretComplexity(parts[0]); err != nil {
			log.Printf("忽略不符合复杂度要求的密钥: %v", err)
			continue
		}
		secrets = append(secrets, JWTSecret{
			Secret:    parts[0],
			CreatedAt: createdAt,
			ExpiresAt: expiresAt,
		})
	}

	// 按创建时间降序排列，最新的密钥用于签名
	for i := 0; i < len(secrets); i++ {
		for j := i + 1; j < len(secrets); j++ {
			if secrets[j].CreatedAt.After(secrets[i].CreatedAt) {
				secrets[i], secrets[j] = secrets[j], secrets[i]
			}
		}
	}

	return secrets, nil
}

// InitializeSecretFile 首次启动时创建密钥文件
func InitializeSecretFile() error {
	rotationMutex.Lock()
	defer rotationMutex.Unlock()

	if _, err := os.Stat(model.JWTSecretFile); err == nil {
		return nil
	}

	var secrets []JWTSecret
	for i := 0; i < model.MinValidSecrets; i++ {
		s, err := generateNewSecret()
		if err != nil {
			return fmt.Errorf("生成初始密钥失败: %v", err)
		}
		secrets = append(secrets, s)
	}

	if err := writeSecretsToFile(secrets); err != nil {
		return fmt.Errorf("写入初始密钥文件失败: %v", err)
	}

	log.Printf("密钥文件初始化完成: %s", model.JWTSecretFile)
	return nil
}

func writeSecretsToFile(secrets []JWTSecret) error {
	var sb strings.Builder
	for _, s := range secrets {
		sb.WriteString(fmt.Sprintf("%s|%s|%s\n",
			s.Secret,
			s.CreatedAt.Format(time.RFC3339),
			s.ExpiresAt.Format(time.RFC3339)))
	}
	return os.WriteFile(model.JWTSecretFile, []byte(sb.String()), 0600)
}

func generateNewSecret() (JWTSecret, error) {
	raw := make([]byte, model.SecretLength)
	if _, err := rand.Read(raw); err != nil {
		return JWTSecret{}, err
	}

	hash := sha256.Sum256(raw)
	secret := base64.StdEncoding.EncodeToString(hash[:]) + base64.StdEncoding.EncodeToString(raw)[:32]

	now := time.Now()
	return JWTSecret{
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(model.JWTSecretLifetime),
	}, nil
}

func validateSecretComplexity(secret string) error {
	if len(secret) < 32 {
		return fmt.Errorf("密钥长度不足")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range secret {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("密钥复杂度不足")
	}
	return nil
}
