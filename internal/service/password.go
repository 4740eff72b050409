package service

import "golang.org/x/crypto/bcrypt"

// HashPassword genera un digest bcrypt con salt por registro. Dos llamadas
// con el mismo plaintext producen digests distintos.
func HashPassword(plain string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

// VerifyPassword reporta si el plaintext corresponde al digest. Nunca
// lanza: digests malformados o vacíos solo retornan false.
func VerifyPassword(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
