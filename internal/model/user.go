package model

import "time"

// Role は操作主体の役割を表す。
type Role string

const (
	// RoleAdmin はモデレーションを行う管理者。
	RoleAdmin Role = "admin"
	// RoleLandlord は掲載を所有する家主。
	RoleLandlord Role = "landlord"
	// RoleTenant は掲載を閲覧・報告するテナント。
	RoleTenant Role = "tenant"
	// RoleSystem は決済Webhookや期限切れスケジューラなどの内部処理。
	RoleSystem Role = "system"
)

// Actor は操作を要求した主体を表す。
type Actor struct {
	ID   string
	Role Role
}

// SystemActor はスケジューラなど内部処理用のActorを返す。
func SystemActor(name string) Actor {
	return Actor{ID: name, Role: RoleSystem}
}

// Session は外部認証サービスが発行したログインセッションを表す。
// このサービスはセッションを発行しない。認証時の参照と、保持期間を過ぎた行の削除のみを行う。
type Session struct {
	ID        string
	UserID    string
	Role      Role
	ExpiresAt time.Time
	CreatedAt time.Time
}
