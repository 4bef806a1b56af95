package configs

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadEnvFile 从 .env 文件加载环境变量，已存在的环境变量不会被覆盖
//
// path: .env 文件路径，文件不存在时直接忽略
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
