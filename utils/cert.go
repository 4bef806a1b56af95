package utils

// 传输层证书相关工具

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// GenerateSelfSignedCert 生成自签名证书，返回 PEM 格式的证书和私钥
//
// commonName: 证书主题名称
func GenerateSelfSignedCert(commonName string) (certPEM []byte, keyPEM []byte, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to generate private key: %w", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to generate serial number: %w", err)
	}
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to marshal private key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// LoadTransientCertificate 把证书和私钥写入临时文件后加载，加载完成立即删除临时文件
//
// certPEM: PEM 格式证书
// keyPEM: PEM 格式私钥
func LoadTransientCertificate(certPEM []byte, keyPEM []byte) (tls.Certificate, error) {
	certFile, err := writeTempFile("coop-cert-*.pem", certPEM)
	if err != nil {
		return tls.Certificate{}, err
	}
	defer os.Remove(certFile)
	keyFile, err := writeTempFile("coop-key-*.pem", keyPEM)
	if err != nil {
		return tls.Certificate{}, err
	}
	defer os.Remove(keyFile)
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("Failed to load key pair: %w", err)
	}
	return cert, nil
}

// writeTempFile 写入临时文件，返回文件路径
func writeTempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("Failed to create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("Failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

// NewServerTLSConfig 生成自签名证书并构建服务端 TLS 配置
func NewServerTLSConfig(commonName string) (*tls.Config, error) {
	certPEM, keyPEM, err := GenerateSelfSignedCert(commonName)
	if err != nil {
		return nil, err
	}
	cert, err := LoadTransientCertificate(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// NewClientTLSConfig 构建连接对端时使用的 TLS 配置，对端均为自签名证书，跳过校验
func NewClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
}
