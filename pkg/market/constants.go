package market

import "time"

const (
	operationBuyOfficial      = "buy_official_listing"
	operationWithdrawOfficial = "withdraw_official_listing"
	operationOpenPack         = "open_pack"
	operationPerformFusion    = "perform_fusion"
	operationCreateListing    = "create_listing"
	operationWithdrawListing  = "withdraw_listing"
	operationDestroyCard      = "destroy_card"
	operationWithdrawShipping = "withdraw_for_shipping"
	operationOfferPoints      = "offer_points"
	operationOfferCash        = "offer_cash"
	operationWithdrawOffer    = "withdraw_offer"
	operationAcceptOffer      = "accept_offer"
	operationPayPointOffer    = "pay_point_offer"
	operationPayPricePoint    = "pay_price_point"
	operationSettleCashOffer  = "settle_cash_offer"

	operationStatusOK          = "ok"
	operationStatusError       = "error"
	operationStatusCompensated = "compensated"

	offerPaymentWindow = 48 * time.Hour

	defaultConflictRetries = 3

	withdrawRequestPending = "pending"
)
