package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account status values stored in usuarios.estado.
const (
	StatusActive   = "activo"
	StatusInactive = "inactivo"
)

// User maps the usuarios table.
type User struct {
	bun.BaseModel `bun:"table:usuarios,alias:u"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid"`
	Username           string     `bun:"username,notnull"`
	Email              string     `bun:"email,notnull"`
	PasswordHash       string     `bun:"password_hash,notnull"`
	Telefono           string     `bun:"telefono,notnull"`
	Estado             string     `bun:"estado,notnull"`
	EmailVerificado    bool       `bun:"email_verificado,notnull"`
	CodigoVerificacion *string    `bun:"codigo_verificacion"`
	CodigoEnviadoEn    *time.Time `bun:"codigo_enviado_en"`
	TokenSesion        *string    `bun:"token_sesion"`
	RecordarSesion     bool       `bun:"recordar_sesion,notnull"`
	UltimoAcceso       *time.Time `bun:"ultimo_acceso"`
	FechaCreacion      time.Time  `bun:"fecha_creacion,nullzero,notnull,default:current_timestamp"`
}
