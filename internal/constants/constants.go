package constants

// 合作站点状态常量
const (
	PartnerSiteStatusActive   = "ACTIVE"
	PartnerSiteStatusInactive = "INACTIVE"
)

// 转化事件类型常量
const (
	ConversionEventRegister  = "REGISTER"
	ConversionEventDeposit   = "DEPOSIT"
	ConversionEventQualified = "QUALIFIED"
)

// 转化状态常量
const (
	ConversionStatusPending  = "PENDING"
	ConversionStatusApproved = "APPROVED"
	ConversionStatusRejected = "REJECTED"
)

// 转化来源渠道常量
const (
	ConversionSourcePostback = "postback"
	ConversionSourceBatch    = "batch"
)

// 佣金档位常量
const (
	CommissionTierStandard   = "STANDARD"
	CommissionTierHighVolume = "HIGH_VOLUME"
	CommissionTierCustom     = "CUSTOM"
)

// 佣金配置变更类型常量
const (
	CommissionChangeManualOverride = "MANUAL_OVERRIDE"
	CommissionChangeResetToDefault = "RESET_TO_DEFAULT"
)

// 结算单状态常量
const (
	PayoutStatusPending = "PENDING"
	PayoutStatusPaid    = "PAID"
)

// 对账导入批次状态常量
const (
	ImportBatchStatusProcessing = "PROCESSING"
	ImportBatchStatusCompleted  = "COMPLETED"
	ImportBatchStatusFailed     = "FAILED"
)

// 支付通道常量（用于网关手续费查表）
const (
	PaymentChannelStripe          = "stripe"
	PaymentChannelRedsys          = "redsys"
	PaymentChannelStripeSimulated = "stripe_simulated"
	PaymentChannelDefault         = "default"
)

// 默认值常量
const (
	DefaultCurrency      = "EUR"
	DefaultPostbackEvent = "REGISTRATION"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskPayoutGenerate        = "payout:generate"
	TaskConversionBatchImport = "conversion:batch_import"
)
