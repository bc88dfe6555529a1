package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"stateflow/authority"
	"stateflow/bizerror"
	"stateflow/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// User is a basic-auth account. Secret holds the sha256 hex digest of
// the password, never the password itself. Perms is the stored role set
// granted to the account.
type User struct {
	ID       types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name     string   `json:"name" sql:"type:VARCHAR(128) NOT NULL"`
	Secret   string   `json:"-" sql:"type:VARCHAR(64) NOT NULL"`
	Nickname string   `json:"nickname" sql:"type:VARCHAR(128) NOT NULL"`

	Perms authority.Permissions `json:"perms" sql:"type:TEXT"`
}

func (u *User) TableName() string {
	return "users"
}

type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var AuthenticateFunc = Authenticate

func HashSha256(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}

// Authenticate checks the credentials against the user table and builds
// an unsigned security context carrying the account's stored permissions.
// The caller mints the token.
func Authenticate(ctx context.Context, name, password string) (*Context, error) {
	user := User{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where(&User{Name: name, Secret: HashSha256(password)}).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, err
	}
	return &Context{
		Identity:    Identity{ID: user.ID, Name: user.Name, Nickname: user.Nickname},
		Perms:       user.Perms,
		SigningTime: time.Now(),
	}, nil
}

// DefaultSecurityConfiguration creates the bootstrap administrator
// account when user 1 does not exist yet. The initial password comes
// from INITIAL_ADMIN_PASSWORD, falling back to a development default.
func DefaultSecurityConfiguration(ctx context.Context) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		admin := User{}
		err := tx.Where(&User{ID: 1}).First(&admin).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		initialAdminPassword := os.Getenv("INITIAL_ADMIN_PASSWORD")
		if initialAdminPassword == "" {
			initialAdminPassword = "admin123"
		}
		return tx.Save(&User{ID: 1, Name: "admin", Secret: HashSha256(initialAdminPassword),
			Perms: authority.Permissions{authority.RoleAdmin}}).Error
	})
}
