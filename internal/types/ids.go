package types

import "github.com/google/uuid"

// ID prefixes identify the entity type of an identifier at a glance.
const (
	PrefixLocation     = "loc_"
	PrefixAsset        = "ast_"
	PrefixTemplate     = "tpl_"
	PrefixRequest      = "req_"
	PrefixUser         = "usr_"
	PrefixNotification = "ntf_"
)

func NewLocationID() string     { return PrefixLocation + uuid.New().String() }
func NewAssetID() string        { return PrefixAsset + uuid.New().String() }
func NewTemplateID() string     { return PrefixTemplate + uuid.New().String() }
func NewRequestID() string      { return PrefixRequest + uuid.New().String() }
func NewUserID() string         { return PrefixUser + uuid.New().String() }
func NewNotificationID() string { return PrefixNotification + uuid.New().String() }
