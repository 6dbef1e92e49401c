package rpc

import (
	"errors"
	"net/http"

	"gridchain/native/market"
)

const (
	codeMarketInvalidParams     = -32021
	codeMarketNotFound          = -32022
	codeMarketForbidden         = -32023
	codeMarketConflict          = -32024
	codeMarketInternal          = -32025
	codeMarketInsufficientFunds = -32026
)

var marketCodes = moduleCodes{
	invalidParams:     codeMarketInvalidParams,
	notFound:          codeMarketNotFound,
	forbidden:         codeMarketForbidden,
	conflict:          codeMarketConflict,
	insufficientFunds: codeMarketInsufficientFunds,
	internal:          codeMarketInternal,
	classifyFn:        classifyMarketError,
}

func classifyMarketError(err error) (string, int) {
	switch {
	case errors.Is(err, market.ErrNotFound), errors.Is(err, market.ErrEscrowNotFound), errors.Is(err, market.ErrBidNotFound):
		return "not_found", slotNotFound
	case errors.Is(err, market.ErrUnauthorized), errors.Is(err, market.ErrNotRegistered):
		return "forbidden", slotForbidden
	case errors.Is(err, market.ErrInvalidState), errors.Is(err, market.ErrNoLeadingBid), errors.Is(err, market.ErrSelfTrade):
		return "conflict", slotConflict
	case errors.Is(err, market.ErrInsufficientFunds):
		return "insufficient_funds", slotInsufficientFunds
	case errors.Is(err, market.ErrInvalidPricing), errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrPriceTooLow), errors.Is(err, market.ErrAmountTooSmall),
		errors.Is(err, market.ErrAmountTooLarge), errors.Is(err, market.ErrFeeTooHigh),
		errors.Is(err, market.ErrInvalidLimits):
		return "invalid_params", slotInvalidParams
	default:
		return "internal", slotInternal
	}
}

type createListingParams struct {
	Seller       string `json:"seller"`
	EnergyAmount uint64 `json:"energyAmount"`
	PricePerUnit string `json:"pricePerUnit"`
	Pricing      string `json:"pricing"`
	MinPrice     string `json:"minPrice,omitempty"`
}

func (s *Server) handleMarketCreateListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params createListingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.PricePerUnit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	pricing, err := market.ParsePricingModel(params.Pricing)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	minPrice := price
	if pricing == market.PricingAuction {
		minPrice, err = parsePositiveBigInt(params.MinPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	listing, err := s.node.CreateListing(seller, params.EnergyAmount, price, pricing, minPrice)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newListingJSON(listing))
}

type listingActorParams struct {
	ListingID uint64 `json:"listingId"`
	Caller    string `json:"caller"`
}

func (s *Server) listingActorOp(w http.ResponseWriter, req *RPCRequest, op func(uint64, [20]byte) (*market.Listing, error)) {
	var params listingActorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := op(params.ListingID, caller)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newListingJSON(listing))
}

func (s *Server) handleMarketPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, func(id uint64, caller [20]byte) (*market.Listing, error) {
		return s.node.PurchaseListing(id, caller)
	})
}

func (s *Server) handleMarketFinalizeAuction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, s.node.FinalizeAuction)
}

func (s *Server) handleMarketCancelListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, s.node.CancelListing)
}

func (s *Server) handleMarketConfirmDelivery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, s.node.ConfirmDelivery)
}

func (s *Server) handleMarketSettlePayment(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, s.node.SettlePayment)
}

func (s *Server) handleMarketOpenDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.listingActorOp(w, req, s.node.OpenDispute)
}

type placeBidParams struct {
	ListingID    uint64 `json:"listingId"`
	Bidder       string `json:"bidder"`
	PricePerUnit string `json:"pricePerUnit"`
}

func (s *Server) handleMarketPlaceBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params placeBidParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.PricePerUnit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bid, err := s.node.PlaceBid(params.ListingID, bidder, price)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newBidJSON(bid))
}

type resolveDisputeParams struct {
	ListingID   uint64 `json:"listingId"`
	Caller      string `json:"caller"`
	RefundBuyer bool   `json:"refundBuyer"`
}

func (s *Server) handleMarketResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params resolveDisputeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.ResolveDispute(params.ListingID, caller, params.RefundBuyer)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newListingJSON(listing))
}

type setFeeParams struct {
	Caller  string `json:"caller"`
	Percent uint64 `json:"percent"`
}

func (s *Server) handleMarketSetPlatformFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setFeeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetPlatformFeePercent(caller, params.Percent); err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"feePercent": params.Percent})
}

type setLimitsParams struct {
	Caller string `json:"caller"`
	Min    uint64 `json:"min"`
	Max    uint64 `json:"max"`
}

func (s *Server) handleMarketSetListingLimits(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setLimitsParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetListingAmountLimits(caller, params.Min, params.Max); err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"min": params.Min, "max": params.Max})
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleMarketTransferOwnership(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params transferOwnershipParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TransferMarketOwnership(caller, newOwner); err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(newOwner)})
}

type listingIDParams struct {
	ListingID uint64 `json:"listingId"`
}

func (s *Server) handleMarketGetListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listingIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.GetListing(params.ListingID)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newListingJSON(listing))
}

func (s *Server) handleMarketGetEscrow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listingIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.GetEscrow(params.ListingID)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newEscrowJSON(record))
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) handleMarketGetTradingHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	history, err := s.node.GetTradingHistory(addr)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newHistoryJSON(history))
}

func (s *Server) handleMarketGetHighestBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listingIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bid, err := s.node.GetHighestBid(params.ListingID)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newBidJSON(bid))
}

type getBidParams struct {
	ListingID uint64 `json:"listingId"`
	Bidder    string `json:"bidder"`
}

func (s *Server) handleMarketGetBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params getBidParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bid, err := s.node.GetBid(params.ListingID, bidder)
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, newBidJSON(bid))
}

func (s *Server) handleMarketListingNonce(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	nonce, err := s.node.ListingNonce()
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"listingNonce": nonce})
}

func (s *Server) handleMarketOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, err := s.node.MarketOwner()
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(owner)})
}

func (s *Server) handleMarketPlatformFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	percent, err := s.node.PlatformFeePercent()
	if err != nil {
		s.writeModuleError(w, req.ID, err, marketCodes)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"feePercent": percent})
}

func (s *Server) handleGridHeight(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, map[string]uint64{"height": s.node.Height()})
}

func (s *Server) handleGridRecentEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.node.RecentEvents())
}
