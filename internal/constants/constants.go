package constants

const (
	IDRandomBytes = 12

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	AvatarField     = "avatar"
	CoverImageField = "coverImage"
)
