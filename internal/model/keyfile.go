package model

// KeyFile represents the encrypted custody key file structure
type KeyFile struct {
	Network    string `json:"network"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// KeyData represents decrypted custody key data
type KeyData struct {
	PrivateKey []byte `json:"privateKey"` // 64 bytes ed25519 key (stored as base64 in JSON)
	CreatedAt  string `json:"createdAt"`
}
